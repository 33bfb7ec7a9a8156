// Package tariff resolves the fee structure each marketplace charges per sale:
// real figures from the tariff API or the finance ledger when obtainable,
// estimation formulas otherwise.
package tariff

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
)

const (
	DefaultBatchSize = 200
	DefaultCacheTTL  = time.Hour
)

// Source is the product view the resolver reads. *datastore.Store satisfies it.
type Source interface {
	Connected() []domain.Marketplace
	Products(mp domain.Marketplace) []domain.Product
}

// Config tunes a Resolver.
type Config struct {
	Seller    string
	BatchSize int
	CacheTTL  time.Duration
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cfg      Config
	provider domain.MarketplaceProvider
	queue    *fetchqueue.Queue
	cache    domain.TariffCache
	logger   *slog.Logger
}

// New creates a Resolver. A nil cache gets an in-memory one.
func New(cfg Config, provider domain.MarketplaceProvider, queue *fetchqueue.Queue, cache domain.TariffCache, logger *slog.Logger) *Resolver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{
		cfg:      cfg,
		provider: provider,
		queue:    queue,
		cache:    cache,
		logger:   logger.With(slog.String("component", "tariff_resolver"), slog.String("seller", cfg.Seller)),
	}
}

// Resolve prices every product of every connected source in src.
func (r *Resolver) Resolve(ctx context.Context, src Source) Tariffs {
	out := make(Tariffs)
	for _, mp := range src.Connected() {
		for k, v := range r.ResolveMarketplace(ctx, mp, src.Products(mp)) {
			out[k] = v
		}
	}
	return out
}

// ResolveMarketplace prices products of one marketplace. Products that could
// not be priced are absent from the result.
func (r *Resolver) ResolveMarketplace(ctx context.Context, mp domain.Marketplace, products []domain.Product) Tariffs {
	if len(products) == 0 {
		return Tariffs{}
	}
	switch mp.TariffCapability() {
	case domain.TariffAPI:
		return r.resolveAPI(ctx, mp, products)
	case domain.TariffLedger:
		return r.resolveLedger(ctx, mp, products)
	default:
		return r.resolveEstimated(mp, products)
	}
}

func (r *Resolver) cacheKey(parts ...string) string {
	return "tariff:" + r.cfg.Seller + ":" + strings.Join(parts, ":")
}

func (r *Resolver) cached(ctx context.Context, key string) (domain.TariffInfo, bool) {
	info, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "tariff cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return domain.TariffInfo{}, false
	}
	return info, true
}

func (r *Resolver) store(ctx context.Context, key string, info domain.TariffInfo) {
	if err := r.cache.Set(ctx, key, info, r.cfg.CacheTTL); err != nil {
		r.logger.WarnContext(ctx, "tariff cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// resolveAPI looks tariffs up once per (category, price) signature and copies
// each answer to every product sharing it. Products without a category code
// stay unresolved.
func (r *Resolver) resolveAPI(ctx context.Context, mp domain.Marketplace, products []domain.Product) Tariffs {
	out := make(Tariffs)
	groups := make(map[domain.TariffSignature][]domain.ProductKey)
	var order []domain.TariffSignature
	for _, p := range products {
		if p.CategoryCode == 0 {
			continue
		}
		sig := domain.TariffSignature{Marketplace: mp, CategoryCode: p.CategoryCode, Price: p.Price}
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], p.Key())
	}

	var missing []domain.TariffQuery
	for _, sig := range order {
		if info, ok := r.cached(ctx, r.cacheKey(sig.String())); ok {
			for _, k := range groups[sig] {
				out[k] = info
			}
			continue
		}
		missing = append(missing, domain.TariffQuery{
			OfferID:      groups[sig][0].OfferID,
			CategoryCode: sig.CategoryCode,
			Price:        sig.Price,
		})
	}
	if len(missing) == 0 {
		return out
	}

	type pending struct {
		size int
		ch   <-chan fetchqueue.Result
	}
	var batches []pending
	for start := 0; start < len(missing); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(missing))
		batch := missing[start:end]
		ch := r.queue.Submit(r.batchKey(mp, batch), fetchqueue.PriorityTariffs, func(ctx context.Context) (any, error) {
			return r.provider.Tariffs(ctx, mp, batch)
		})
		batches = append(batches, pending{size: len(batch), ch: ch})
	}

	for _, b := range batches {
		var res fetchqueue.Result
		select {
		case <-ctx.Done():
			return out
		case res = <-b.ch:
		}
		if res.Err != nil {
			r.logger.WarnContext(ctx, "tariff batch failed, leaving products unresolved",
				slog.String("marketplace", string(mp)),
				slog.Int("signatures", b.size),
				slog.String("error", res.Err.Error()),
			)
			continue
		}
		quotes, _ := res.Value.([]domain.TariffQuote)
		for _, q := range quotes {
			sig := domain.TariffSignature{Marketplace: mp, CategoryCode: q.CategoryCode, Price: q.Price}
			keys, ok := groups[sig]
			if !ok {
				continue
			}
			info := domain.NewTariffInfo(q.Price, q.AgencyCommission, q.Fulfillment, q.Delivery, q.Sorting, true, domain.TariffSourceAPI)
			r.store(ctx, r.cacheKey(sig.String()), info)
			for _, k := range keys {
				out[k] = info
			}
		}
	}
	return out
}

// batchKey identifies a batch by its content so identical concurrent batches
// share one provider call.
func (r *Resolver) batchKey(mp domain.Marketplace, batch []domain.TariffQuery) string {
	h := fnv.New64a()
	for _, q := range batch {
		fmt.Fprintf(h, "%d|%s;", q.CategoryCode, strconv.FormatFloat(q.Price, 'f', -1, 64))
	}
	return "tariffs:" + r.cfg.Seller + ":" + string(mp) + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// resolveLedger prices products from actual charged expenses and falls back to
// the tiered model for products without ledger lines. Only ledger-backed
// tariffs are cached, so an estimated product is looked up again next time.
func (r *Resolver) resolveLedger(ctx context.Context, mp domain.Marketplace, products []domain.Product) Tariffs {
	out := make(Tariffs)
	key := func(p domain.Product) string {
		return r.cacheKey(string(mp), "offer", p.OfferID, strconv.FormatFloat(p.Price, 'f', -1, 64))
	}

	prices := make(map[string]float64)
	var ids []string
	var todo []domain.Product
	for _, p := range products {
		if info, ok := r.cached(ctx, key(p)); ok {
			out[p.Key()] = info
			continue
		}
		todo = append(todo, p)
		if _, seen := prices[p.OfferID]; !seen {
			ids = append(ids, p.OfferID)
		}
		prices[p.OfferID] = p.Price
	}
	if len(todo) == 0 {
		return out
	}

	sort.Strings(ids)
	h := fnv.New64a()
	for _, id := range ids {
		fmt.Fprintf(h, "%s;", id)
	}
	qkey := "finance-ledger:" + r.cfg.Seller + ":" + string(mp) + ":" + strconv.FormatUint(h.Sum64(), 16)

	entries, err := fetchqueue.Do(ctx, r.queue, qkey, fetchqueue.PriorityTariffs,
		func(ctx context.Context) ([]domain.LedgerEntry, error) {
			return r.provider.FinanceLedger(ctx, mp, ids)
		})
	ledgerOK := err == nil
	if err != nil {
		r.logger.WarnContext(ctx, "finance ledger unavailable, estimating",
			slog.String("marketplace", string(mp)),
			slog.String("error", err.Error()),
		)
	}

	charged := fromLedger(entries, prices)
	for _, p := range todo {
		info, ok := charged[p.OfferID]
		if ok {
			info = info.ForPrice(p.Price)
		} else {
			info, _ = Estimate(mp, p.Price)
		}
		out[p.Key()] = info
		if ledgerOK && ok {
			r.store(ctx, key(p), info)
		}
	}
	return out
}

func (r *Resolver) resolveEstimated(mp domain.Marketplace, products []domain.Product) Tariffs {
	out := make(Tariffs, len(products))
	for _, p := range products {
		if info, ok := Estimate(mp, p.Price); ok {
			out[p.Key()] = info
		}
	}
	return out
}
