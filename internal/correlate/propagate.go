package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Propagation reports what PropagateCostPrices did.
type Propagation struct {
	Copied []domain.CostPriceEntry
	ByTier map[Tier]int
	// Unmatched target products still have no cost price.
	Unmatched []domain.ProductKey
	// Declared counts targets that already had a cost price and were left alone.
	Declared int
}

// PropagateCostPrices copies cost prices from matched source products onto
// target products that have none. Only source products with a declared cost
// price are considered as candidates.
func PropagateCostPrices(ctx context.Context, store domain.CostPriceStore, target, source []domain.Product) (Propagation, error) {
	res := Propagation{ByTier: make(map[Tier]int)}

	sourceCosts, err := costsByMarketplace(ctx, store, source)
	if err != nil {
		return res, err
	}
	var priced []domain.Product
	for _, p := range source {
		if _, ok := sourceCosts[p.Marketplace][p.OfferID]; ok {
			priced = append(priced, p)
		}
	}

	targetCosts, err := costsByMarketplace(ctx, store, target)
	if err != nil {
		return res, err
	}

	ix := newIndex(priced)
	now := time.Now().UTC()
	for _, p := range target {
		if _, ok := targetCosts[p.Marketplace][p.OfferID]; ok {
			res.Declared++
			continue
		}
		m, tier, ok := ix.match(p)
		if !ok {
			res.Unmatched = append(res.Unmatched, p.Key())
			continue
		}
		res.ByTier[tier]++
		res.Copied = append(res.Copied, domain.CostPriceEntry{
			Key:       p.Key(),
			CostPrice: sourceCosts[m.Marketplace][m.OfferID],
			UpdatedAt: now,
		})
	}

	if len(res.Copied) > 0 {
		if err := store.BulkSet(ctx, res.Copied); err != nil {
			return res, fmt.Errorf("correlate: propagate cost prices: %w", err)
		}
	}
	return res, nil
}

func costsByMarketplace(ctx context.Context, store domain.CostPriceStore, products []domain.Product) (map[domain.Marketplace]map[string]float64, error) {
	out := make(map[domain.Marketplace]map[string]float64)
	for _, p := range products {
		if _, ok := out[p.Marketplace]; ok {
			continue
		}
		costs, err := store.List(ctx, p.Marketplace)
		if err != nil {
			return nil, fmt.Errorf("correlate: list cost prices %s: %w", p.Marketplace, err)
		}
		out[p.Marketplace] = costs
	}
	return out, nil
}

// AlreadyCloned splits candidates for a bulk clone into products that already
// exist among existing and products that still need cloning.
func AlreadyCloned(candidates, existing []domain.Product) (present, toClone []domain.Product) {
	if len(existing) == 0 {
		return nil, append([]domain.Product(nil), candidates...)
	}
	ix := newIndex(existing)
	for _, c := range candidates {
		if _, _, ok := ix.match(c); ok {
			present = append(present, c)
		} else {
			toClone = append(toClone, c)
		}
	}
	return present, toClone
}
