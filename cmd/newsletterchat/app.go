package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"NewsletterChat/internal/backend"
	"NewsletterChat/internal/cache"
	"NewsletterChat/internal/chat"
	"NewsletterChat/internal/config"
	"NewsletterChat/internal/health"
	"NewsletterChat/internal/render"
	"NewsletterChat/internal/store"
	"NewsletterChat/internal/telemetry"
)

// options holds the persistent flags shared by every command
type options struct {
	configPath  string
	backendURL  string
	sessionID   string
	debug       bool
	ephemeral   bool
	noTelemetry bool
}

// app is everything a command needs, wired from configuration
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *backend.Client
	store      store.StateStore
	controller *chat.Controller
	renderer   *render.Terminal
	probe      *health.Probe

	closers []func()
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}
	if o.noTelemetry {
		cfg.Telemetry = false
	}
	cfg.SessionID = o.sessionID
	cfg.Debug = o.debug
	cfg.Ephemeral = o.ephemeral

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, o *options) (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { _ = logFile.Close() })

	providers := telemetry.Noop()
	if cfg.Telemetry {
		providers, err = telemetry.InitTelemetry(ctx, cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}
	a.closers = append(a.closers, providers.Shutdown)

	a.client, err = backend.New(cfg.BackendURL,
		backend.WithLogger(logger),
		backend.WithTimeout(cfg.Timeout),
		backend.WithTracer(providers.Tracer),
		backend.WithMeter(providers.Meter),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	if cfg.Ephemeral {
		a.store = store.NewMemory(cfg.SessionID)
	} else {
		st, err := store.OpenSQLite(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		a.store = st
		if cfg.SessionID != "" {
			if err := st.SetCurrentSessionID(ctx, cfg.SessionID); err != nil {
				return nil, err
			}
		}
	}
	a.closers = append(a.closers, func() {
		if err := a.store.Close(); err != nil {
			logger.Error("failed to close state store", "error", err)
		}
	})

	a.controller, err = chat.NewController(a.client, a.store, chat.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.renderer = render.NewTerminal(cfg.RenderMode, cfg.RenderWidth, cache.NewRenders(0))
	a.probe = health.NewProbe(a.client, cfg.Upstream, logger)

	logger.Info("client started", "backend_url", cfg.BackendURL, "ephemeral", cfg.Ephemeral, "render_mode", cfg.RenderMode)
	ok = true
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// withApp wraps a command body with app setup and teardown
func withApp(o *options, run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, o)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, cmd, a, args)
	}
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
