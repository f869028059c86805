// Package manager wires the asset catalog, downloader, server runtime and
// the two generators into one facade used by the HTTP API and the CLI.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/assets"
	"inferd/internal/config"
	"inferd/internal/generate"
	"inferd/internal/imagegen"
	"inferd/internal/runtime"
	"inferd/pkg/types"
)

type assetSource interface {
	Missing() []types.AssetSpec
	Statuses() []types.AssetStatus
}

type assetFetcher interface {
	Fetch(ctx context.Context, spec types.AssetSpec, progress types.ProgressFunc) error
}

type serverRuntime interface {
	StartAsync()
	IsReady() bool
	DidFail() bool
	State() runtime.State
	Stop()
}

type nameGenerator interface {
	Generate(ctx context.Context, descriptor string, progress types.ProgressFunc) string
}

type imageGenerator interface {
	Run(ctx context.Context, prompt string, params types.ImageParams, progress types.ProgressFunc) ([]byte, error)
}

// Manager owns the long-lived components of the daemon. Construct with New,
// start the inference server with StartServer, and Stop it via Close.
type Manager struct {
	cfg     config.Config
	log     zerolog.Logger
	catalog assetSource
	fetcher assetFetcher
	server  serverRuntime
	names   nameGenerator
	images  imageGenerator
	started time.Time
}

func New(cfg config.Config, log zerolog.Logger) *Manager {
	srv := runtime.New(cfg, log)
	return &Manager{
		cfg:     cfg,
		log:     log,
		catalog: assets.NewCatalog(cfg, log),
		fetcher: assets.NewDownloader(log),
		server:  srv,
		names:   generate.NewDispatcher(cfg, srv, log),
		images:  imagegen.NewRunner(cfg, log),
		started: time.Now(),
	}
}

// EnsureAssets downloads every required asset that is absent or fails its
// checksum. Downloads run sequentially; the first failure aborts the rest.
func (m *Manager) EnsureAssets(ctx context.Context, progress types.ProgressFunc) error {
	missing := m.catalog.Missing()
	if len(missing) == 0 {
		m.log.Debug().Msg("all required assets present")
		return nil
	}
	for _, spec := range missing {
		m.log.Info().Str("asset", spec.Name).Str("path", spec.Path).Msg("fetching missing asset")
		if err := m.fetcher.Fetch(ctx, spec, progress); err != nil {
			return fmt.Errorf("fetch %s: %w", spec.Name, err)
		}
	}
	return nil
}

// StartServer begins the inference-server startup sequence in the
// background. Safe to call more than once.
func (m *Manager) StartServer() {
	m.server.StartAsync()
}

// Ready reports whether the inference server is accepting requests. Name
// generation works without it via the CLI fallback; readiness only gates
// the server path.
func (m *Manager) Ready() bool {
	return m.server.IsReady()
}

// ServerFailed reports whether the startup sequence ended in failure.
func (m *Manager) ServerFailed() bool {
	return m.server.DidFail()
}

// GenerateName produces one character name for the descriptor. The result
// is the sentinel name when every attempt failed; there is no error path.
func (m *Manager) GenerateName(ctx context.Context, descriptor string, progress types.ProgressFunc) string {
	return m.names.Generate(ctx, descriptor, progress)
}

// GenerateImage runs one image generation and returns the upscaled PNG.
func (m *Manager) GenerateImage(ctx context.Context, req types.ImageRequest, progress types.ProgressFunc) ([]byte, error) {
	return m.images.Run(ctx, req.Prompt, req.ImageParams, progress)
}

// Status snapshots the daemon for the control API.
func (m *Manager) Status() types.StatusResponse {
	return types.StatusResponse{
		ServerState:    m.server.State().String(),
		Assets:         m.catalog.Statuses(),
		UptimeSeconds:  int64(time.Since(m.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

// AssetStatuses reports the required assets without the rest of the status
// payload.
func (m *Manager) AssetStatuses() []types.AssetStatus {
	return m.catalog.Statuses()
}

// Close stops the managed inference server. Idempotent.
func (m *Manager) Close() {
	m.server.Stop()
}
