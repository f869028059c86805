package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

type rootOptions struct {
	configPath string
	addr       string
	assetsDir  string
	logLevel   string
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Local inference orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", envDefault("INFERD_CONFIG", ""), "Path to config file (.yaml/.json/.toml)")
	root.PersistentFlags().StringVar(&opts.addr, "addr", envDefault("INFERD_ADDR", ""), "Control API listen address, e.g. 127.0.0.1:8090")
	root.PersistentFlags().StringVar(&opts.assetsDir, "assets-dir", envDefault("INFERD_ASSETS_DIR", ""), "Directory anchoring relative binary and model paths")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envDefault("INFERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newFetchCmd(opts))
	root.AddCommand(newNameCmd(opts))
	root.AddCommand(newImageCmd(opts))
	return root
}

func (o *rootOptions) logger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(o.logLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// load builds the effective configuration: file, then flag overrides, then
// defaults and validation.
func (o *rootOptions) load() (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.assetsDir != "" {
		cfg.AssetsDir = o.assetsDir
	}
	cfg, err := cfg.Normalized()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// stderrProgress prints progress events for interactive commands.
func stderrProgress() types.ProgressFunc {
	return func(msg string, pct *float64) {
		if msg == "" {
			return
		}
		if pct != nil {
			fmt.Fprintf(os.Stderr, "%s (%.1f%%)\n", msg, *pct)
			return
		}
		fmt.Fprintln(os.Stderr, msg)
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipAssets bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Fetch assets, start the inference server and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger()
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			mgr := manager.New(cfg, log)
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !skipAssets {
				if err := mgr.EnsureAssets(ctx, stderrProgress()); err != nil {
					return err
				}
			}
			mgr.StartServer()

			srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr, log)}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("control API listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipAssets, "skip-assets", false, "Do not download missing model assets at startup")
	return cmd
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download any missing or corrupt model assets and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger()
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			mgr := manager.New(cfg, log)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return mgr.EnsureAssets(ctx, stderrProgress())
		},
	}
}

func newNameCmd(opts *rootOptions) *cobra.Command {
	var useServer bool
	cmd := &cobra.Command{
		Use:   "name <descriptor>",
		Short: "Generate one character name for a descriptor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger()
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			descriptor := strings.Join(args, " ")
			mgr := manager.New(cfg, log)
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := mgr.EnsureAssets(ctx, stderrProgress()); err != nil {
				return err
			}
			if useServer {
				mgr.StartServer()
				waitForServer(ctx, mgr, cfg, log)
			}
			name := mgr.GenerateName(ctx, descriptor, stderrProgress())
			fmt.Println(name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useServer, "use-server", true, "Start the inference server and prefer it over the one-shot CLI")
	return cmd
}

// waitForServer blocks until the server is ready, has failed, or the start
// timeout elapses. Failure is not fatal here: generation falls back to the
// one-shot CLI.
func waitForServer(ctx context.Context, mgr *manager.Manager, cfg config.Config, log zerolog.Logger) {
	deadline := time.Now().Add(cfg.StartTimeout())
	for time.Now().Before(deadline) {
		if mgr.Ready() {
			return
		}
		if mgr.ServerFailed() {
			log.Warn().Msg("inference server failed to start; using cli fallback")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.PollInterval()):
		}
	}
	log.Warn().Msg("inference server not ready before deadline; using cli fallback")
}

func newImageCmd(opts *rootOptions) *cobra.Command {
	var (
		out      string
		width    int
		height   int
		steps    int
		cfgScale float64
		negative string
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate one image for a prompt and write it as PNG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger()
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			mgr := manager.New(cfg, log)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := mgr.EnsureAssets(ctx, stderrProgress()); err != nil {
				return err
			}
			params := types.ImageParams{CfgScale: cfgScale, NegativePrompt: negative}
			if cmd.Flags().Changed("width") {
				params.Width = types.Int(width)
			}
			if cmd.Flags().Changed("height") {
				params.Height = types.Int(height)
			}
			if cmd.Flags().Changed("steps") {
				params.Steps = types.Int(steps)
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = types.Int64(seed)
			}
			payload, err := mgr.GenerateImage(ctx, types.ImageRequest{Prompt: prompt, ImageParams: params}, stderrProgress())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			log.Info().Str("path", out).Msg("image written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "portrait.png", "Output PNG path")
	cmd.Flags().IntVar(&width, "width", 0, "Image width (omit for the configured default)")
	cmd.Flags().IntVar(&height, "height", 0, "Image height (omit for the configured default)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Sampling steps (omit for the configured default)")
	cmd.Flags().Float64Var(&cfgScale, "cfg-scale", 0, "Guidance scale (0 uses the configured default)")
	cmd.Flags().StringVarP(&negative, "negative", "n", "", "Negative prompt")
	cmd.Flags().Int64Var(&seed, "seed", -1, "Sampling seed (negative picks a random seed)")
	return cmd
}
