package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

const probeTimeout = 2 * time.Second

// prober performs the lightweight readiness check: GET the models endpoint,
// and on any failure GET the server root as a secondary check. A 2xx on
// either counts as ready.
type prober struct {
	cfg    config.Config
	log    zerolog.Logger
	client *http.Client
}

func newProber(cfg config.Config, log zerolog.Logger) *prober {
	// Timeout stays 0 on the client; each probe carries its own context.
	return &prober{cfg: cfg, log: log, client: &http.Client{Timeout: 0}}
}

func (p *prober) healthy() bool {
	p.log.Debug().
		Str("models_endpoint", p.cfg.ModelsEndpoint).
		Str("root_endpoint", p.cfg.ServerURL).
		Msg("probing inference server")
	if p.check(p.cfg.ModelsEndpoint) {
		return true
	}
	return p.check(p.cfg.ServerURL)
}

func (p *prober) check(endpoint string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
