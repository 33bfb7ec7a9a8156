package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/datastore"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
	"github.com/alanyoungcy/marketledger/internal/profit"
	"github.com/alanyoungcy/marketledger/internal/server"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/session"
	"github.com/alanyoungcy/marketledger/internal/tariff"
)

// sessionConfig maps the file configuration onto one seller's session.
func sessionConfig(cfg *config.Config, seller config.SellerConfig) session.Config {
	return session.Config{
		Seller:       seller.ID,
		Marketplaces: seller.MarketplaceIDs(),
		Fetch: fetchqueue.Config{
			MaxConcurrency: cfg.Fetch.MaxConcurrency,
			MaxRetries:     cfg.Fetch.MaxRetries,
			BaseDelay:      cfg.Fetch.BaseDelay.Duration,
			MaxDelay:       cfg.Fetch.MaxDelay.Duration,
			RatePerSecond:  cfg.Fetch.RatePerSecond,
			RateBurst:      cfg.Fetch.RateBurst,
		},
		Store: datastore.Config{
			ProductsTTL:   cfg.Store.ProductsTTL.Duration,
			OrdersTTL:     cfg.Store.OrdersTTL.Duration,
			OrderLookback: cfg.Store.OrderLookback.Duration,
		},
		Tariff: tariff.Config{
			BatchSize: cfg.Tariff.BatchSize,
			CacheTTL:  cfg.Tariff.CacheTTL.Duration,
		},
		Profit: profit.Config{
			DefaultTaxRate: cfg.Profit.DefaultTaxRate,
			TaxRates:       cfg.TaxRates(),
		},
	}
}

func (a *App) startSessions(ctx context.Context, deps *Dependencies) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(a.cfg.Sellers))
	for _, seller := range a.cfg.Sellers {
		s, err := session.New(sessionConfig(a.cfg, seller), session.Deps{
			Provider:    deps.Provider,
			Costs:       deps.CostStore,
			Snapshots:   deps.Snapshots,
			TariffCache: deps.TariffCache,
			Archiver:    deps.Archiver,
			Notifier:    deps.Notifier,
		}, a.logger)
		if err != nil {
			for _, started := range sessions {
				started.Close()
			}
			return nil, err
		}
		s.Start(ctx)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// SyncMode refreshes every seller on sync_interval and keeps the tariff cache
// warm. A failed refresh is logged and retried on the next tick. The status
// API runs alongside when enabled.
func (a *App) SyncMode(ctx context.Context, sessions []*session.Session) error {
	interval := a.cfg.SyncInterval.Duration
	a.logger.InfoContext(ctx, "starting sync mode", slog.Duration("interval", interval))

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, sessions)
	}
	for _, s := range sessions {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				a.syncOnce(ctx, s)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, sessions []*session.Session) {
	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, server.Handlers{
		Health:  handler.NewHealthHandler(sessions),
		Sellers: handler.NewSellerHandler(sessions, a.cfg.Profit.ReportDays, a.logger),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *App) syncOnce(ctx context.Context, s *session.Session) {
	if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		a.logger.WarnContext(ctx, "sync incomplete",
			slog.String("seller", s.Seller()),
			slog.String("error", err.Error()),
		)
	}
	if ctx.Err() != nil {
		return
	}
	store := s.Store()
	summary := s.Tariffs(ctx).Summarize(store.AllProducts())
	a.logger.InfoContext(ctx, "tariffs resolved",
		slog.String("seller", s.Seller()),
		slog.Int("real", summary.Real),
		slog.Int("estimated", summary.Estimated),
		slog.Int("unresolved", summary.Unresolved),
	)
}

// ReportMode syncs every seller once, then computes and archives a report for
// the trailing report_days. Each seller's run holds the report:{seller} lock
// when Redis is available; a seller locked by another replica is skipped.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies, sessions []*session.Session) error {
	days := a.cfg.Profit.ReportDays
	a.logger.InfoContext(ctx, "starting report mode", slog.Int("days", days))

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			return a.reportSeller(ctx, deps, s, days)
		})
	}
	return g.Wait()
}

func (a *App) reportSeller(ctx context.Context, deps *Dependencies, s *session.Session, days int) error {
	logger := a.logger.With(slog.String("seller", s.Seller()))

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "report:"+s.Seller(), a.cfg.Redis.LockTTL.Duration)
		if errors.Is(err, domain.ErrLockHeld) {
			logger.InfoContext(ctx, "report already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("report %s: %w", s.Seller(), err)
		}
		defer unlock()
	}

	if err := s.Sync(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Cached or snapshot data still makes a useful report.
		logger.WarnContext(ctx, "sync incomplete, reporting on cached data", slog.String("error", err.Error()))
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	report, err := s.Report(ctx, session.ReportOptions{From: from, To: to, Archive: true})
	if err != nil {
		return fmt.Errorf("report %s: %w", s.Seller(), err)
	}
	logger.InfoContext(ctx, "report finished",
		slog.String("report_id", report.ID),
		slog.Float64("revenue", report.Totals.Revenue),
		slog.Float64("net_profit", report.Totals.NetProfit),
		slog.Int("missing_cost", report.Totals.MissingCost),
		slog.Int("losses", len(profit.Losses(report.Reconciliation))),
	)
	return nil
}
