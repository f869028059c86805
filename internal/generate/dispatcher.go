// Package generate dispatches name-generation requests: it prefers the
// running HTTP inference server and transparently falls back to one-shot
// CLI invocations when the server is unavailable or answers garbage.
package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/pkg/types"
)

// ReadyChecker reports whether the background server can accept requests.
// *runtime.Runtime satisfies it.
type ReadyChecker interface {
	IsReady() bool
}

// completionRequest is the payload POSTed to the completion endpoint.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	CachePrompt bool     `json:"cache_prompt,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Dispatcher routes one generation request. Each Generate call owns its own
// subprocess and buffers; a Dispatcher may be shared across goroutines.
type Dispatcher struct {
	cfg       config.Config
	log       zerolog.Logger
	readiness ReadyChecker
	client    *http.Client
	validator Validator
	params    types.GenerationParams
}

func NewDispatcher(cfg config.Config, readiness ReadyChecker, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		log:       log,
		readiness: readiness,
		// Timeout stays 0: each request carries a context deadline.
		client:    &http.Client{Timeout: 0},
		validator: Validator{Parts: cfg.NameParts},
		params: types.GenerationParams{
			NPredict:    24,
			Temperature: 1.5,
			TopP:        0.9,
			CachePrompt: true,
			Stop:        []string{"END"},
			Model:       filepath.Base(cfg.TextBinary),
		},
	}
}

// Generate produces a name for the descriptor. The HTTP path gets a single
// attempt (fail fast to the CLI); the CLI path retries up to the configured
// attempt count. It never returns an error: exhaustion yields UnknownName.
func (d *Dispatcher) Generate(ctx context.Context, descriptor string, progress types.ProgressFunc) string {
	if d.readiness != nil && d.readiness.IsReady() {
		emit(progress, "Submitting request to LLM server...", nil)
		prompt := config.RenderPrompt(d.cfg.ServerPromptTemplate, descriptor)
		if name, ok := d.viaServer(ctx, prompt, progress); ok {
			serverSuccessTotal.Inc()
			return name
		}
		serverFailureTotal.Inc()
		d.log.Warn().Msg("llm server request failed; falling back to cli")
	}
	cliFallbackTotal.Inc()
	prompt := config.RenderPrompt(d.cfg.NamePrompt, descriptor)
	return d.viaCLI(ctx, prompt, progress)
}

// viaServer posts the prompt to the completion endpoint and extracts a
// validated name. Any failure along the way returns ok=false so the caller
// can fall back; nothing on this path is fatal.
func (d *Dispatcher) viaServer(ctx context.Context, prompt string, progress types.ProgressFunc) (string, bool) {
	payload := completionRequest{
		Prompt:      prompt,
		Stream:      false,
		NPredict:    d.params.NPredict,
		Temperature: d.params.Temperature,
		TopP:        d.params.TopP,
		CachePrompt: d.params.CachePrompt,
		Stop:        d.params.Stop,
		Model:       d.params.Model,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.cfg.CompletionEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error().Err(err).Msg("llm server request error")
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		d.log.Error().Str("status", resp.Status).Bytes("body", b).Msg("llm server http error")
		return "", false
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		d.log.Error().Err(err).Msg("read llm server response")
		return "", false
	}
	text := extractCompletionText(raw)
	emit(progress, "Received response from LLM server.", types.Percent(100))
	if text == "" {
		d.log.Warn().Msg("empty or malformed llm server response")
		return "", false
	}
	name := ExtractName(text)
	if name == "" || !d.validator.Valid(name) {
		d.log.Warn().Str("candidate", name).Msg("server output failed name validation")
		return "", false
	}
	return name, true
}

// viaCLI launches the one-shot binary up to MaxAttempts times, streaming
// its merged output line-by-line to the progress callback, until a line
// yields a validated name.
func (d *Dispatcher) viaCLI(ctx context.Context, prompt string, progress types.ProgressFunc) string {
	maxAttempts := d.cfg.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cliAttemptsTotal.Inc()
		emit(progress, fmt.Sprintf("Starting LLM attempt %d/%d", attempt, maxAttempts), nil)
		output, err := d.runOnce(ctx, prompt, progress)
		if err != nil {
			d.log.Error().Err(err).Str("binary", d.cfg.TextBinary).Msg("failed to execute llm binary")
			return UnknownName
		}
		if name := ExtractName(output); name != "" && d.validator.Valid(name) {
			return name
		}
		d.log.Warn().Int("attempt", attempt).Msg("cli output yielded no usable name")
	}
	return UnknownName
}

// runOnce executes a single CLI invocation, forwarding each output line to
// the progress callback while also collecting it. A non-zero exit is not an
// error here: partial output may still contain a usable result, matching
// the retry policy.
func (d *Dispatcher) runOnce(ctx context.Context, prompt string, progress types.ProgressFunc) (string, error) {
	cmd := exec.CommandContext(ctx, d.cfg.TextBinary, "-p", prompt)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	d.log.Debug().Str("binary", d.cfg.TextBinary).Msg("launching llm cli")
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return "", fmt.Errorf("launch %s: %w", d.cfg.TextBinary, err)
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		pw.Close()
	}()

	var captured []string
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		captured = append(captured, line)
		emit(progress, line, parseProgressPercent(line))
	}
	if werr := <-waitCh; werr != nil {
		d.log.Debug().AnErr("wait", werr).Msg("llm cli exited non-zero")
	}
	return strings.Join(captured, "\n"), nil
}

func emit(progress types.ProgressFunc, msg string, pct *float64) {
	if progress != nil {
		progress(msg, pct)
	}
}
