// Package app provides the top-level application lifecycle for the indexer.
// It wires together all dependencies (store, cache, blob storage, notifiers)
// and starts the appropriate goroutines based on the configured operating
// mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bahbah94/Orbex/internal/config"
	"github.com/bahbah94/Orbex/internal/notify"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("symbol", a.cfg.Market.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.notifyLifecycle(ctx, deps.Notifier, "indexer started")
	defer a.notifyStopped(deps.Notifier)

	switch strings.ToLower(a.cfg.Mode) {
	case "full":
		return a.FullMode(ctx, deps)
	case "ingest":
		return a.IngestMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) notifyLifecycle(ctx context.Context, n *notify.Notifier, title string) {
	msg := fmt.Sprintf("mode=%s symbol=%s", strings.ToLower(a.cfg.Mode), a.cfg.Market.Symbol)
	if err := n.NotifyAll(ctx, title, msg); err != nil {
		a.logger.WarnContext(ctx, "lifecycle notification failed", slog.String("error", err.Error()))
	}
}

// notifyStopped runs after the run context is already cancelled, so it gets
// its own short deadline.
func (a *App) notifyStopped(n *notify.Notifier) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.notifyLifecycle(ctx, n, "indexer stopped")
}
