// Package session hosts one seller's reconciliation engine: its fetch queue,
// data store, tariff resolver and profitability engine. Sessions share no
// state, so several sellers can run side by side in one process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/correlate"
	"github.com/alanyoungcy/marketledger/internal/datastore"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
	"github.com/alanyoungcy/marketledger/internal/notify"
	"github.com/alanyoungcy/marketledger/internal/profit"
	"github.com/alanyoungcy/marketledger/internal/tariff"
)

// Config configures one session.
type Config struct {
	Seller       string
	Marketplaces []domain.Marketplace
	Fetch        fetchqueue.Config
	Store        datastore.Config
	Tariff       tariff.Config
	Profit       profit.Config
}

// Archiver persists a finished report and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, r domain.ProfitReport) (string, error)
}

// Deps are the collaborators a session uses. Only Provider is required.
type Deps struct {
	Provider    domain.MarketplaceProvider
	Costs       domain.CostPriceStore
	Snapshots   domain.SnapshotCache
	TariffCache domain.TariffCache
	Archiver    Archiver
	Notifier    *notify.Notifier
}

// Session is safe for concurrent use once started.
type Session struct {
	cfg      Config
	deps     Deps
	queue    *fetchqueue.Queue
	store    *datastore.Store
	resolver *tariff.Resolver
	engine   *profit.Engine
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds a session. Nothing is fetched until Start.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Session, error) {
	if cfg.Seller == "" {
		return nil, errors.New("session: seller is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("session %s: provider is required", cfg.Seller)
	}
	cfg.Store.Seller = cfg.Seller
	cfg.Tariff.Seller = cfg.Seller

	logger = logger.With(slog.String("seller", cfg.Seller))
	q := fetchqueue.New(cfg.Fetch, logger)
	return &Session{
		cfg:      cfg,
		deps:     deps,
		queue:    q,
		store:    datastore.New(cfg.Store, deps.Provider, q, deps.Snapshots, cfg.Marketplaces, logger),
		resolver: tariff.New(cfg.Tariff, deps.Provider, q, deps.TariffCache, logger),
		engine:   profit.NewEngine(cfg.Profit, deps.Costs, logger),
		logger:   logger.With(slog.String("component", "session")),
	}, nil
}

// Seller returns the seller id.
func (s *Session) Seller() string { return s.cfg.Seller }

// Store returns the session's data store.
func (s *Session) Store() *datastore.Store { return s.store }

// Queue returns the session's fetch queue.
func (s *Session) Queue() *fetchqueue.Queue { return s.queue }

// Start runs the fetch queue in the background and seeds the store from the
// snapshot cache. Calling Start twice is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	qctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if err := s.queue.Run(qctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("fetch queue stopped", slog.String("error", err.Error()))
		}
	}()
	s.store.Warm(ctx)
}

// Close stops background refreshes and the fetch queue.
func (s *Session) Close() {
	s.store.Close()
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Sync refreshes every connected source. A failed source keeps its cached
// data and raises a fetch_failed advisory; the joined errors are returned.
func (s *Session) Sync(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for _, mp := range s.store.Connected() {
		err := s.store.Refresh(ctx, mp)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		s.logger.WarnContext(ctx, "source refresh failed",
			slog.String("marketplace", string(mp)),
			slog.String("error", err.Error()),
		)
		if ctx.Err() == nil {
			if nerr := s.deps.Notifier.FetchFailed(ctx, s.cfg.Seller, mp, err); nerr != nil {
				s.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
			}
		}
	}
	st := s.queue.Stats()
	s.logger.InfoContext(ctx, "sync finished",
		slog.Int("sources", len(s.store.Connected())),
		slog.Int("failed", len(errs)),
		slog.Int64("attempts", st.Attempts),
		slog.Duration("took", time.Since(start)),
	)
	return errors.Join(errs...)
}

// Tariffs resolves fees for every product currently held by the store.
func (s *Session) Tariffs(ctx context.Context) tariff.Tariffs {
	return s.resolver.Resolve(ctx, s.store)
}

// ReportOptions bound a report.
type ReportOptions struct {
	From    time.Time
	To      time.Time
	Inbound map[domain.ProductKey]int
	// Archive uploads the report when an archiver is configured.
	Archive bool
}

// Report computes a profitability report from the store's current data. The
// report is returned even when archiving fails.
func (s *Session) Report(ctx context.Context, opts ReportOptions) (domain.ProfitReport, error) {
	products := s.store.AllProducts()
	tariffs := s.Tariffs(ctx)
	in := profit.Input{
		Products: products,
		Orders:   s.store.AllOrders(),
		Tariffs:  tariffs,
		From:     opts.From,
		To:       opts.To,
		Inbound:  opts.Inbound,
	}
	report := s.engine.Report(ctx, s.cfg.Seller, in)
	s.logger.InfoContext(ctx, "report computed",
		slog.String("report_id", report.ID),
		slog.Int("products", len(report.Products)),
		slog.Float64("revenue", report.Totals.Revenue),
		slog.Float64("net_profit", report.Totals.NetProfit),
		slog.Bool("tariffs_pending", report.TariffsPending),
	)

	s.advise(ctx, func() error {
		return s.deps.Notifier.TariffsEstimated(ctx, s.cfg.Seller, tariffs.Summarize(products))
	})
	s.advise(ctx, func() error {
		return s.deps.Notifier.InventoryLoss(ctx, s.cfg.Seller, profit.Losses(report.Reconciliation))
	})

	if !opts.Archive || s.deps.Archiver == nil {
		return report, nil
	}
	path, err := s.deps.Archiver.Archive(ctx, report)
	if err != nil {
		return report, fmt.Errorf("session %s: archive report: %w", s.cfg.Seller, err)
	}
	s.advise(ctx, func() error { return s.deps.Notifier.ReportReady(ctx, report, path) })
	return report, nil
}

// PropagateCostPrices copies declared cost prices from source listings to
// matching target listings that have none.
func (s *Session) PropagateCostPrices(ctx context.Context, target, source domain.Marketplace) (correlate.Propagation, error) {
	if s.deps.Costs == nil {
		return correlate.Propagation{}, fmt.Errorf("session %s: propagate cost prices: no cost store", s.cfg.Seller)
	}
	res, err := correlate.PropagateCostPrices(ctx, s.deps.Costs, s.store.Products(target), s.store.Products(source))
	if err != nil {
		return res, fmt.Errorf("session %s: %w", s.cfg.Seller, err)
	}
	s.logger.InfoContext(ctx, "cost prices propagated",
		slog.String("target", string(target)),
		slog.String("source", string(source)),
		slog.Int("copied", len(res.Copied)),
		slog.Int("unmatched", len(res.Unmatched)),
	)
	return res, nil
}

// CloneCandidates splits source listings into those already present on
// target and those still to be cloned.
func (s *Session) CloneCandidates(target, source domain.Marketplace) (present, toClone []domain.Product) {
	return correlate.AlreadyCloned(s.store.Products(source), s.store.Products(target))
}

func (s *Session) advise(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}
