// Package httpapi exposes the daemon's control API: health and status
// probes, asset inspection, and the two generation endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.StatusResponse
	AssetStatuses() []types.AssetStatus
	Ready() bool
	GenerateName(ctx context.Context, descriptor string, progress types.ProgressFunc) string
	GenerateImage(ctx context.Context, req types.ImageRequest, progress types.ProgressFunc) ([]byte, error)
}

func NewMux(svc Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, svc.Status())
	})

	r.Get("/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, map[string]any{"assets": svc.AssetStatuses()})
	})

	r.Post("/v1/name", func(w http.ResponseWriter, r *http.Request) {
		var req types.NameRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Descriptor) == "" {
			writeJSONError(w, http.StatusBadRequest, "descriptor is required")
			return
		}
		rid := middleware.GetReqID(r.Context())
		name := svc.GenerateName(r.Context(), req.Descriptor, progressLogger(log, rid))
		log.Info().Str("request_id", rid).Str("name", name).Msg("name generated")
		writeJSON(log, w, types.NameResponse{Name: name})
	})

	r.Post("/v1/image", func(w http.ResponseWriter, r *http.Request) {
		var req types.ImageRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		rid := middleware.GetReqID(r.Context())
		payload, err := svc.GenerateImage(r.Context(), req, progressLogger(log, rid))
		if err != nil {
			status := statusForError(err)
			log.Error().Str("request_id", rid).Int("status", status).Err(err).Msg("image generation failed")
			writeJSONError(w, status, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSONBody enforces the content type and body limit, then decodes
// into dst. It writes the error response itself and reports success.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON encodes v as the response body. Encoding can only fail after
// the 200 header is committed, so a failure is logged rather than mapped
// to a second status write.
func writeJSON(log zerolog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// progressLogger forwards progress events into the structured log at debug
// level, tagged with the request id.
func progressLogger(log zerolog.Logger, requestID string) types.ProgressFunc {
	return func(msg string, pct *float64) {
		if msg == "" {
			return
		}
		ev := log.Debug().Str("request_id", requestID)
		if pct != nil {
			ev = ev.Float64("percent", *pct)
		}
		ev.Msg(msg)
	}
}
