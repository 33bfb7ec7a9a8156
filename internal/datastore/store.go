// Package datastore caches marketplace products and orders per connected
// source. Reads are synchronous and never fail; stale entries are refreshed in
// the background through the fetch queue.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
)

// Default staleness windows. Catalogs change far less often than order status.
const (
	DefaultProductsTTL   = 10 * time.Minute
	DefaultOrdersTTL     = 5 * time.Minute
	DefaultOrderLookback = 90 * 24 * time.Hour
)

// Config tunes a Store.
type Config struct {
	Seller        string
	ProductsTTL   time.Duration
	OrdersTTL     time.Duration
	OrderLookback time.Duration
}

// Store is one seller session's cache. It is safe for concurrent use.
type Store struct {
	cfg      Config
	provider domain.MarketplaceProvider
	queue    *fetchqueue.Queue
	snaps    domain.SnapshotCache // optional
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	connected []domain.Marketplace
	products  map[domain.Marketplace]*entry[domain.Product]
	orders    map[domain.Marketplace]*entry[domain.Order]
	wg        sync.WaitGroup
}

// New creates a Store for the given connected sources. snaps may be nil.
func New(
	cfg Config,
	provider domain.MarketplaceProvider,
	queue *fetchqueue.Queue,
	snaps domain.SnapshotCache,
	connected []domain.Marketplace,
	logger *slog.Logger,
) *Store {
	if cfg.ProductsTTL <= 0 {
		cfg.ProductsTTL = DefaultProductsTTL
	}
	if cfg.OrdersTTL <= 0 {
		cfg.OrdersTTL = DefaultOrdersTTL
	}
	if cfg.OrderLookback <= 0 {
		cfg.OrderLookback = DefaultOrderLookback
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		cfg:      cfg,
		provider: provider,
		queue:    queue,
		snaps:    snaps,
		logger:   logger.With(slog.String("component", "datastore"), slog.String("seller", cfg.Seller)),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		products: make(map[domain.Marketplace]*entry[domain.Product]),
		orders:   make(map[domain.Marketplace]*entry[domain.Order]),
	}
	for _, mp := range connected {
		s.connectLocked(mp)
	}
	return s
}

// Close stops background refreshes and waits for them to finish.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

// Connect adds a source. Connecting an already connected source is a no-op.
func (s *Store) Connect(mp domain.Marketplace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectLocked(mp)
}

// Disconnect removes a source and drops its cached data.
func (s *Store) Disconnect(mp domain.Marketplace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.connected {
		if c == mp {
			s.connected = append(s.connected[:i], s.connected[i+1:]...)
			break
		}
	}
	delete(s.products, mp)
	delete(s.orders, mp)
}

func (s *Store) connectLocked(mp domain.Marketplace) {
	if _, ok := s.products[mp]; ok {
		return
	}
	s.connected = append(s.connected, mp)
	s.products[mp] = newEntry[domain.Product](s.cfg.ProductsTTL)
	s.orders[mp] = newEntry[domain.Order](s.cfg.OrdersTTL)
}

// Connected returns the connected sources in connection order.
func (s *Store) Connected() []domain.Marketplace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Marketplace, len(s.connected))
	copy(out, s.connected)
	return out
}

// IsConnected reports whether mp is connected.
func (s *Store) IsConnected(mp domain.Marketplace) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[mp]
	return ok
}

// Products returns the cached products of mp. It returns an empty slice for a
// disconnected or never-loaded source. A stale or invalidated entry triggers a
// background refresh; the caller still gets the current value.
func (s *Store) Products(mp domain.Marketplace) []domain.Product {
	s.mu.Lock()
	e, ok := s.products[mp]
	if !ok {
		s.mu.Unlock()
		return []domain.Product{}
	}
	out := e.snapshot()
	start := e.claimRefresh(s.now())
	s.mu.Unlock()

	if start {
		s.background(func(ctx context.Context) { _ = s.loadProducts(ctx, mp) })
	}
	return out
}

// Orders returns the cached orders of mp with the same contract as Products.
func (s *Store) Orders(mp domain.Marketplace) []domain.Order {
	s.mu.Lock()
	e, ok := s.orders[mp]
	if !ok {
		s.mu.Unlock()
		return []domain.Order{}
	}
	out := e.snapshot()
	start := e.claimRefresh(s.now())
	s.mu.Unlock()

	if start {
		s.background(func(ctx context.Context) { _ = s.loadOrders(ctx, mp) })
	}
	return out
}

// AllProducts concatenates the products of every connected source. No
// cross-source de-duplication happens here.
func (s *Store) AllProducts() []domain.Product {
	var out []domain.Product
	for _, mp := range s.Connected() {
		out = append(out, s.Products(mp)...)
	}
	return out
}

// AllOrders concatenates the orders of every connected source.
func (s *Store) AllOrders() []domain.Order {
	var out []domain.Order
	for _, mp := range s.Connected() {
		out = append(out, s.Orders(mp)...)
	}
	return out
}

// Refetch invalidates the given sources, or every source when none are given.
// The next read triggers a new fetch; a fetch already in flight is not
// cancelled.
func (s *Store) Refetch(mps ...domain.Marketplace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(mps) == 0 {
		mps = s.connected
	}
	for _, mp := range mps {
		if e, ok := s.products[mp]; ok {
			e.invalidated = true
		}
		if e, ok := s.orders[mp]; ok {
			e.invalidated = true
		}
	}
}

// Refresh fetches products and orders of mp and waits for both. On failure
// the previously cached data is kept and the error is returned.
func (s *Store) Refresh(ctx context.Context, mp domain.Marketplace) error {
	s.mu.Lock()
	pe, ok := s.products[mp]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("datastore: refresh %s: %w", mp, domain.ErrNotConnected)
	}
	pe.begin(s.now())
	s.orders[mp].begin(s.now())
	s.mu.Unlock()

	return errors.Join(s.loadProducts(ctx, mp), s.loadOrders(ctx, mp))
}

// RefreshAll refreshes every connected source.
func (s *Store) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, mp := range s.Connected() {
		if err := s.Refresh(ctx, mp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpdateStock pushes a stock update to the marketplace and invalidates the
// source's products so the next read reflects it.
func (s *Store) UpdateStock(ctx context.Context, mp domain.Marketplace, updates []domain.StockUpdate) error {
	if !s.IsConnected(mp) {
		return fmt.Errorf("datastore: update stock %s: %w", mp, domain.ErrNotConnected)
	}
	if len(updates) == 0 {
		return nil
	}
	// Each update is distinct, so it gets a unique key and is never coalesced.
	key := "update-stock:" + s.cfg.Seller + ":" + string(mp) + ":" + uuid.NewString()
	_, err := fetchqueue.Do(ctx, s.queue, key, fetchqueue.PriorityOrders,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.provider.UpdateStock(ctx, mp, updates)
		})
	if err != nil {
		return fmt.Errorf("datastore: update stock %s: %w", mp, err)
	}
	s.Refetch(mp)
	return nil
}

// Warm seeds never-loaded sources from the snapshot cache. Snapshot entries
// keep their original fetch time, so they are usually stale and get refreshed
// on first read.
func (s *Store) Warm(ctx context.Context) {
	if s.snaps == nil {
		return
	}
	for _, mp := range s.Connected() {
		if products, at, err := s.snaps.LoadProducts(ctx, s.cfg.Seller, mp); err == nil {
			s.mu.Lock()
			if e, ok := s.products[mp]; ok && e.fetchedAt.IsZero() {
				e.value, e.fetchedAt = products, at
				e.markLoaded()
			}
			s.mu.Unlock()
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "snapshot load failed",
				slog.String("marketplace", string(mp)),
				slog.String("kind", "products"),
				slog.String("error", err.Error()),
			)
		}

		if orders, at, err := s.snaps.LoadOrders(ctx, s.cfg.Seller, mp); err == nil {
			s.mu.Lock()
			if e, ok := s.orders[mp]; ok && e.fetchedAt.IsZero() {
				e.value, e.fetchedAt = orders, at
				e.markLoaded()
			}
			s.mu.Unlock()
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "snapshot load failed",
				slog.String("marketplace", string(mp)),
				slog.String("kind", "orders"),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Store) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Store) productsKey(mp domain.Marketplace) string {
	return "products:" + s.cfg.Seller + ":" + string(mp)
}

func (s *Store) ordersKey(mp domain.Marketplace) string {
	return "orders:" + s.cfg.Seller + ":" + string(mp)
}

// loadProducts expects the caller to have bumped inFlight on the entry.
func (s *Store) loadProducts(ctx context.Context, mp domain.Marketplace) error {
	products, err := fetchqueue.Do(ctx, s.queue, s.productsKey(mp), fetchqueue.PriorityProducts,
		func(ctx context.Context) ([]domain.Product, error) {
			return s.provider.Products(ctx, mp)
		})
	fetchedAt := s.now()

	s.mu.Lock()
	e, ok := s.products[mp]
	if ok {
		e.finish(products, fetchedAt, err)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(ctx, "products fetch failed, keeping cached data",
			slog.String("marketplace", string(mp)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("datastore: products %s: %w", mp, err)
	}
	if ok && s.snaps != nil {
		if err := s.snaps.SaveProducts(ctx, s.cfg.Seller, mp, products, fetchedAt); err != nil {
			s.logger.WarnContext(ctx, "snapshot save failed",
				slog.String("marketplace", string(mp)),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.DebugContext(ctx, "products loaded",
		slog.String("marketplace", string(mp)),
		slog.Int("count", len(products)),
	)
	return nil
}

// loadOrders expects the caller to have bumped inFlight on the entry.
func (s *Store) loadOrders(ctx context.Context, mp domain.Marketplace) error {
	now := s.now()
	q := domain.OrderQuery{Since: now.Add(-s.cfg.OrderLookback), Until: now}
	orders, err := fetchqueue.Do(ctx, s.queue, s.ordersKey(mp), fetchqueue.PriorityOrders,
		func(ctx context.Context) ([]domain.Order, error) {
			return s.provider.Orders(ctx, mp, q)
		})
	fetchedAt := s.now()

	s.mu.Lock()
	e, ok := s.orders[mp]
	if ok {
		e.finish(orders, fetchedAt, err)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(ctx, "orders fetch failed, keeping cached data",
			slog.String("marketplace", string(mp)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("datastore: orders %s: %w", mp, err)
	}
	if ok && s.snaps != nil {
		if err := s.snaps.SaveOrders(ctx, s.cfg.Seller, mp, orders, fetchedAt); err != nil {
			s.logger.WarnContext(ctx, "snapshot save failed",
				slog.String("marketplace", string(mp)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
