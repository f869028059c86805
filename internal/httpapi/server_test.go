package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/imagegen"
	"inferd/pkg/types"
)

type stubService struct {
	ready      bool
	name       string
	image      []byte
	imageErr   error
	lastDesc   string
	lastPrompt string
}

func (s *stubService) Status() types.StatusResponse {
	return types.StatusResponse{ServerState: "ready", UptimeSeconds: 7, ServerTimeUnix: 1700000000}
}

func (s *stubService) AssetStatuses() []types.AssetStatus {
	return []types.AssetStatus{{Name: "dreamshaper_8.safetensors", Path: "/models/d", Present: true}}
}

func (s *stubService) Ready() bool { return s.ready }

func (s *stubService) GenerateName(_ context.Context, descriptor string, _ types.ProgressFunc) string {
	s.lastDesc = descriptor
	return s.name
}

func (s *stubService) GenerateImage(_ context.Context, req types.ImageRequest, _ types.ProgressFunc) ([]byte, error) {
	s.lastPrompt = req.Prompt
	return s.image, s.imageErr
}

func newTestMux(svc *stubService) http.Handler {
	return NewMux(svc, zerolog.Nop())
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	h := newTestMux(&stubService{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	svc := &stubService{}
	h := newTestMux(svc)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("not-ready code %d", rr.Code)
	}

	svc.ready = true
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ready" {
		t.Fatalf("ready %d %q", rr.Code, rr.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestMux(&stubService{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code %d", rr.Code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ServerState != "ready" || st.UptimeSeconds != 7 {
		t.Fatalf("status %+v", st)
	}
}

func TestAssetsEndpoint(t *testing.T) {
	h := newTestMux(&stubService{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/assets", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code %d", rr.Code)
	}
	var payload struct {
		Assets []types.AssetStatus `json:"assets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Assets) != 1 || !payload.Assets[0].Present {
		t.Fatalf("assets %+v", payload.Assets)
	}
}

func TestNameEndpoint(t *testing.T) {
	svc := &stubService{name: "Mira Dawn"}
	h := newTestMux(svc)
	rr := postJSON(t, h, "/v1/name", `{"descriptor":"a male orc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code %d body %s", rr.Code, rr.Body.String())
	}
	var resp types.NameResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "Mira Dawn" || svc.lastDesc != "a male orc" {
		t.Fatalf("resp %+v desc %q", resp, svc.lastDesc)
	}
}

func TestNameEndpointValidation(t *testing.T) {
	h := newTestMux(&stubService{})

	rr := postJSON(t, h, "/v1/name", `{"descriptor":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank descriptor code %d", rr.Code)
	}

	rr = postJSON(t, h, "/v1/name", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json code %d", rr.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if er.Code != http.StatusBadRequest || er.Error == "" {
		t.Fatalf("error payload %+v", er)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/name", strings.NewReader(`{"descriptor":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type code %d", rec.Code)
	}
}

func TestImageEndpoint(t *testing.T) {
	svc := &stubService{image: []byte("\x89PNG fake")}
	h := newTestMux(svc)
	rr := postJSON(t, h, "/v1/image", `{"prompt":"portrait of an orc","width":64,"height":64}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code %d body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), svc.image) {
		t.Fatalf("payload %q", rr.Body.Bytes())
	}
	if svc.lastPrompt != "portrait of an orc" {
		t.Fatalf("prompt %q", svc.lastPrompt)
	}
}

func TestImageEndpointPromptRequired(t *testing.T) {
	h := newTestMux(&stubService{})
	rr := postJSON(t, h, "/v1/image", `{"width":64}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("code %d", rr.Code)
	}
}

func TestImageEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid params", imagegen.ErrInvalidParams("width and height must be positive"), http.StatusBadRequest},
		{"missing model", imagegen.ErrNotFound("image model", "/models/absent"), http.StatusConflict},
		{"subprocess", imagegen.ErrSubprocess(errors.New("exit status 1"), []string{"CUDA error"}), http.StatusServiceUnavailable},
		{"no output", imagegen.ErrOutputTimeout("/tmp/out.png"), http.StatusServiceUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestMux(&stubService{imageErr: tc.err})
			rr := postJSON(t, h, "/v1/image", `{"prompt":"p"}`)
			if rr.Code != tc.want {
				t.Fatalf("code %d, want %d", rr.Code, tc.want)
			}
			var er types.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
				t.Fatalf("error payload: %v", err)
			}
			if er.Code != tc.want {
				t.Fatalf("payload code %d", er.Code)
			}
		})
	}
}

func TestWriteJSONEncodeFailureWritesNoErrorPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(zerolog.Nop(), rr, map[string]any{"bad": make(chan int)})
	if rr.Code != http.StatusOK {
		t.Fatalf("status rewritten after commit: %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("error payload appended to committed response: %q", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestMux(&stubService{})
	// Prime the request counter so the exposition includes it.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "inferd_http_requests_total") {
		t.Fatal("request counter missing from exposition")
	}
}
