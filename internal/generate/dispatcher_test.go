package generate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

type stubReady bool

func (s stubReady) IsReady() bool { return bool(s) }

func buildFakeCLI(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fake_llamafile")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_llamafile.go")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake cli: %v: %s", err, out)
	}
	return bin
}

func testConfig(t *testing.T, mutate func(*config.Config)) config.Config {
	t.Helper()
	cfg := config.Config{
		TextBinary:  "/nonexistent/llamafile",
		MaxAttempts: 3,
		NameParts:   2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	out, err := cfg.Normalized()
	if err != nil {
		t.Fatalf("Normalized: %v", err)
	}
	return out
}

func attemptCount(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		t.Fatalf("attempt file: %v", err)
	}
	return n
}

func TestGenerateViaServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"text":"START Mira Dawn END"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, func(c *config.Config) {
		c.CompletionEndpoint = srv.URL + "/completion"
	})
	// TextBinary stays nonexistent: if the dispatcher wrongly fell back to
	// the CLI it would return the sentinel instead of the parsed name.
	d := NewDispatcher(cfg, stubReady(true), zerolog.Nop())
	got := d.Generate(context.Background(), "a male orc.", func(string, *float64) {})
	if got != "Mira Dawn" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateServerInvalidNameFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrong word count: triggers fallback.
		_, _ = w.Write([]byte(`"START Solo END"`))
	}))
	defer srv.Close()

	attemptFile := filepath.Join(t.TempDir(), "attempts")
	t.Setenv("FAKE_ATTEMPT_FILE", attemptFile)
	bin := buildFakeCLI(t)
	cfg := testConfig(t, func(c *config.Config) {
		c.TextBinary = bin
		c.CompletionEndpoint = srv.URL + "/completion"
	})
	d := NewDispatcher(cfg, stubReady(true), zerolog.Nop())
	got := d.Generate(context.Background(), "a male orc.", nil)
	if got != "Mira Dawn" {
		t.Fatalf("got %q", got)
	}
	if n := attemptCount(t, attemptFile); n != 1 {
		t.Fatalf("expected one cli attempt, got %d", n)
	}
}

func TestGenerateServerDownGoesStraightToCLI(t *testing.T) {
	bin := buildFakeCLI(t)
	cfg := testConfig(t, func(c *config.Config) { c.TextBinary = bin })
	d := NewDispatcher(cfg, stubReady(false), zerolog.Nop())
	if got := d.Generate(context.Background(), "a dwarf.", nil); got != "Mira Dawn" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateCLIRetriesThenSucceeds(t *testing.T) {
	attemptFile := filepath.Join(t.TempDir(), "attempts")
	t.Setenv("FAKE_ATTEMPT_FILE", attemptFile)
	t.Setenv("FAKE_SUCCEED_ON", "2")
	bin := buildFakeCLI(t)
	cfg := testConfig(t, func(c *config.Config) { c.TextBinary = bin })
	d := NewDispatcher(cfg, stubReady(false), zerolog.Nop())
	if got := d.Generate(context.Background(), "an elf.", nil); got != "Mira Dawn" {
		t.Fatalf("got %q", got)
	}
	if n := attemptCount(t, attemptFile); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestGenerateCLIExhaustionReturnsSentinel(t *testing.T) {
	attemptFile := filepath.Join(t.TempDir(), "attempts")
	t.Setenv("FAKE_ATTEMPT_FILE", attemptFile)
	t.Setenv("FAKE_CLI_GARBAGE", "1")
	bin := buildFakeCLI(t)
	cfg := testConfig(t, func(c *config.Config) { c.TextBinary = bin })
	d := NewDispatcher(cfg, stubReady(false), zerolog.Nop())
	if got := d.Generate(context.Background(), "an elf.", nil); got != UnknownName {
		t.Fatalf("got %q", got)
	}
	if n := attemptCount(t, attemptFile); n != 3 {
		t.Fatalf("expected MaxAttempts attempts, got %d", n)
	}
}

func TestGenerateLaunchFailureReturnsSentinel(t *testing.T) {
	cfg := testConfig(t, nil) // nonexistent binary
	d := NewDispatcher(cfg, stubReady(false), zerolog.Nop())
	if got := d.Generate(context.Background(), "an elf.", nil); got != UnknownName {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateStreamsProgressLines(t *testing.T) {
	bin := buildFakeCLI(t)
	cfg := testConfig(t, func(c *config.Config) { c.TextBinary = bin })
	d := NewDispatcher(cfg, stubReady(false), zerolog.Nop())

	type event struct {
		msg string
		pct *float64
	}
	var events []event
	d.Generate(context.Background(), "an orc.", func(msg string, pct *float64) {
		events = append(events, event{msg, pct})
	})
	foundEval := false
	for _, e := range events {
		if e.msg == "Prompt evaluation: 42.5%" {
			foundEval = true
			if e.pct == nil || *e.pct != 42.5 {
				t.Fatalf("progress line missing percent: %+v", e.pct)
			}
		}
	}
	if !foundEval {
		t.Fatalf("cli output lines not forwarded: %+v", events)
	}
}
