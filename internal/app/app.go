package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/platform"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/transport"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/wiring"
)

// App owns the process lifecycle. Component construction lives in wiring.
type App struct {
	cfg       Config
	container *wiring.Container
	api       *http.Server
}

// New builds the logger and the component graph. A configured broker is
// connected here so a bad broker URL fails fast.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(slog.New(logging.NewHandler(os.Stdout, cfg.LogFormat, parseLogLevel(cfg.LogLevel))))

	container, err := wiring.New(paramsFor(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	return &App{
		cfg:       cfg,
		container: container,
		api: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      container.Server(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

func paramsFor(cfg Config, logger ports.Logger) wiring.Params {
	return wiring.Params{
		RootDir:        cfg.RootDir,
		TraceSize:      cfg.TraceSize,
		RateLimiterTTL: cfg.RateLimiterTTL,
		Logger:         logger,
		Engine:         cfg.Engine,
		Platform: platform.Config{
			BaseURL:  cfg.PlatformURL,
			Tenant:   cfg.PlatformTenant,
			Username: cfg.PlatformUser,
			Password: cfg.PlatformPassword,
			Timeout:  cfg.PlatformTimeout,
		},
		SendLimits: platform.SendLimits{Rate: cfg.SendRate, Burst: cfg.SendBurst},
		MQTT: transport.MQTTConfig{
			BrokerURL: cfg.BrokerURL,
			ClientID:  cfg.BrokerClientID,
			Username:  cfg.BrokerUser,
			Password:  cfg.BrokerPassword,
		},
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}
}

// Run loads the store, starts consuming and serving, and blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		return err
	}
	if w := a.watchStore(ctx); w != nil {
		defer w.Stop()
	}

	if err := a.serve(ctx); err != nil {
		return err
	}
	return a.stop()
}

// start begins consuming before the first load so the initial subscription
// set is applied by the rebuild hook.
func (a *App) start(ctx context.Context) error {
	if consumer := a.container.Consumer(); consumer != nil {
		consumer.Start(ctx)
	}
	if err := a.container.Server().Reload(ctx); err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	return nil
}

func (a *App) serve(ctx context.Context) error {
	logger := a.container.Logger()
	failed := make(chan error, 1)
	go func() {
		logger.Info("starting mapforge",
			"addr", a.api.Addr,
			"root", a.cfg.RootDir,
			"broker", a.cfg.BrokerURL,
			"platform", a.cfg.PlatformURL,
		)
		if err := a.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.api.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	a.container.Logger().Info("server stopped")
	return nil
}

// watchStore reloads on file changes. A watcher that cannot start only
// disables hot reload.
func (a *App) watchStore(ctx context.Context) *filesystem.Watcher {
	logger := a.container.Logger()
	server := a.container.Server()

	w, err := filesystem.NewWatcher(a.cfg.RootDir, a.cfg.WatcherDebounce, logger, func(change filesystem.StoreChange) {
		if err := server.Reload(ctx); err != nil {
			logger.Error("hot reload failed", "error", err, "files", change.Files)
			return
		}
		logger.Info("hot reload complete", "areas", change.Areas)
	})
	if err != nil {
		logger.Warn("store watcher unavailable, hot reload disabled", "error", err)
		return nil
	}
	w.Start()
	logger.Debug("store watcher started", "root", a.cfg.RootDir)
	return w
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
