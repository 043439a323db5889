package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/consent"
	httpx "github.com/shortontech/botgate/internal/http"
	"github.com/shortontech/botgate/internal/logger"
	"github.com/shortontech/botgate/internal/metrics"
	"github.com/shortontech/botgate/internal/render"
	"github.com/shortontech/botgate/internal/sink"
	"github.com/shortontech/botgate/pkg/config"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr string
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gate HTTP server",
		Long: `Run the gate HTTP server until SIGINT or SIGTERM.

Examples:
  # Serve with configuration from the environment
  botgate serve

  # Override the listen address
  botgate serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts, nil)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides SERVER_ADDR)")

	return cmd
}

// loadConfig reads, resolves and validates the environment configuration.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Resolve(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve blocks until ctx is cancelled. When ready is non-nil it receives the
// bound listener address once the server accepts connections.
func (a *App) serve(ctx context.Context, opts *serveOptions, ready chan<- string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.ServerAddr = opts.addr
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	m := metrics.NewMetrics()
	mcfg := metrics.LoadConfig()
	msrv, err := metrics.NewServer(mcfg, m, log)
	if err != nil {
		return err
	}

	store, err := consent.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open consent store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("consent store close", "store", store.Name(), "error", err)
		}
	}()

	sinks, err := sink.FromNames(cfg.Outputs, log)
	if err != nil {
		return err
	}
	fanout := sink.NewFanout(sinks, m, log)
	if err := fanout.Start(ctx); err != nil {
		return fmt.Errorf("start sinks: %w", err)
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			log.Warnw("sink close", "error", err)
		}
	}()

	renderer, err := render.New(render.Config{RedirectURL: cfg.RedirectURL, Content: render.DefaultContent()})
	if err != nil {
		return err
	}

	env := httpx.Env{
		Cfg:          cfg,
		Classifier:   classify.New(classify.Config{BotPatterns: cfg.BotPatterns}),
		Renderer:     renderer,
		Gate:         consent.NewGate(store, cfg.RedirectURL, m, log),
		Emit:         fanout.Emit,
		Metrics:      m,
		ServeMetrics: mcfg.Inline,
		Log:          log,
	}

	ln, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ServerAddr, err)
	}
	srv := &http.Server{
		Handler:           httpx.NewMux(env),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := msrv.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("botgate listening",
			"addr", ln.Addr().String(),
			"store", store.Name(),
			"outputs", fanout.Names(),
			"patterns", len(cfg.BotPatterns),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Errorw("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	if err := msrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics shutdown", "error", err)
	}
	return serveErr
}

// commandLogger builds the stderr logger for the offline commands, falling
// back to a no-op logger on a bad level.
func commandLogger(level string) *zap.SugaredLogger {
	zl, err := logger.New(level)
	if err != nil {
		return logger.Nop()
	}
	return zl.Sugar()
}
