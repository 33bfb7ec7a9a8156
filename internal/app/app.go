// Package app wires ledgerd together: it builds the shared infrastructure
// (provider, cost store, caches, archive, notifications), starts one session
// per configured seller and runs the selected mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/config"
)

// App owns the configuration, the logger and the cleanup functions that run
// in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until it finishes
// or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.Int("sellers", len(a.cfg.Sellers)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	sessions, err := a.startSessions(ctx, deps)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, func() {
		for _, s := range sessions {
			s.Close()
		}
	})

	switch strings.ToLower(a.cfg.Mode) {
	case "sync":
		return a.SyncMode(ctx, sessions)
	case "report":
		return a.ReportMode(ctx, deps, sessions)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases everything Run acquired. Calling it twice is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
