// Package profit derives per-product net profit, margin, ABC segmentation and
// inventory reconciliation from cached marketplace data.
package profit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/tariff"
)

// DefaultTaxRate applies to marketplaces without an explicit rate.
const DefaultTaxRate = 0.04

// Config tunes an Engine.
type Config struct {
	DefaultTaxRate float64
	// TaxRates overrides the tax rate per marketplace, as a fraction.
	TaxRates map[domain.Marketplace]float64
}

func (c Config) taxRate(mp domain.Marketplace) decimal.Decimal {
	if r, ok := c.TaxRates[mp]; ok {
		return decimal.NewFromFloat(r)
	}
	return decimal.NewFromFloat(c.DefaultTaxRate)
}

// Input is everything one computation reads.
type Input struct {
	Products []domain.Product
	Orders   []domain.Order
	Tariffs  tariff.Tariffs
	// From and To bound order creation time inclusively. Zero means open.
	From time.Time
	To   time.Time
	// Inbound optionally carries received quantities from a shipment feed.
	Inbound map[domain.ProductKey]int
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg    Config
	costs  domain.CostPriceStore
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. costs may be nil, in which case every cost
// price is unknown.
func NewEngine(cfg Config, costs domain.CostPriceStore, logger *slog.Logger) *Engine {
	if cfg.DefaultTaxRate <= 0 {
		cfg.DefaultTaxRate = DefaultTaxRate
	}
	return &Engine{
		cfg:    cfg,
		costs:  costs,
		logger: logger.With(slog.String("component", "profit_engine")),
		now:    time.Now,
	}
}

type sales struct {
	units   int64
	revenue decimal.Decimal
}

// Compute returns one row per product, in input order. ABC groups are not
// assigned; see ClassifyABC.
func (e *Engine) Compute(ctx context.Context, in Input) []domain.ProductProfit {
	sold := make(map[domain.ProductKey]*sales)
	for _, o := range in.Orders {
		if !o.CountsAsRevenue() || !o.InRange(in.From, in.To) {
			continue
		}
		for _, it := range o.Items {
			if it.Quantity <= 0 {
				continue
			}
			k := domain.ProductKey{Marketplace: o.Marketplace, OfferID: it.OfferID}
			s, ok := sold[k]
			if !ok {
				s = &sales{revenue: decimal.Zero}
				sold[k] = s
			}
			qty := decimal.NewFromInt(int64(it.Quantity))
			s.units += int64(it.Quantity)
			s.revenue = s.revenue.Add(decimal.NewFromFloat(it.UnitPrice()).Mul(qty))
		}
	}

	costs := e.loadCosts(ctx, in.Products)

	out := make([]domain.ProductProfit, 0, len(in.Products))
	for _, p := range in.Products {
		k := p.Key()
		s, ok := sold[k]
		if !ok {
			s = &sales{revenue: decimal.Zero}
		}
		units := decimal.NewFromInt(s.units)

		avgPrice := decimal.NewFromFloat(p.Price)
		if s.units > 0 {
			avgPrice = s.revenue.Div(units)
		}
		info := in.Tariffs.For(k, avgPrice.InexactFloat64())

		row := domain.ProductProfit{
			Key:          k,
			Name:         p.Name,
			TotalSold:    int(s.units),
			TotalRevenue: s.revenue.InexactFloat64(),
			AvgSoldPrice: avgPrice.InexactFloat64(),
			Tariff:       info,
		}

		cost := decimal.Zero
		if c, ok := costs[p.Marketplace][p.OfferID]; ok {
			row.CostPrice = c
			row.HasCostPrice = true
			cost = decimal.NewFromFloat(c).Mul(units)
		}
		fees := decimal.NewFromFloat(info.TotalFee).Mul(units)
		tax := s.revenue.Mul(e.cfg.taxRate(p.Marketplace))
		net := s.revenue.Sub(cost).Sub(fees).Sub(tax)

		row.EstimatedCost = cost.InexactFloat64()
		row.Fees = fees.InexactFloat64()
		row.Tax = tax.InexactFloat64()
		row.NetProfit = net.InexactFloat64()
		if !s.revenue.IsZero() {
			row.ProfitMargin = net.Div(s.revenue).InexactFloat64()
		}
		out = append(out, row)
	}
	return out
}

// loadCosts reads declared cost prices per marketplace. A failing store is
// logged and treated as "no cost prices known".
func (e *Engine) loadCosts(ctx context.Context, products []domain.Product) map[domain.Marketplace]map[string]float64 {
	out := make(map[domain.Marketplace]map[string]float64)
	if e.costs == nil {
		return out
	}
	for _, p := range products {
		if _, ok := out[p.Marketplace]; ok {
			continue
		}
		costs, err := e.costs.List(ctx, p.Marketplace)
		if err != nil {
			e.logger.WarnContext(ctx, "cost prices unavailable",
				slog.String("marketplace", string(p.Marketplace)),
				slog.String("error", err.Error()),
			)
			costs = map[string]float64{}
		}
		out[p.Marketplace] = costs
	}
	return out
}

// Report computes a complete profitability report for seller. Rows are
// ordered by descending revenue.
func (e *Engine) Report(ctx context.Context, seller string, in Input) domain.ProfitReport {
	rows := ClassifyABC(e.Compute(ctx, in))

	report := domain.ProfitReport{
		ID:             uuid.NewString(),
		Seller:         seller,
		From:           in.From,
		To:             in.To,
		GeneratedAt:    e.now().UTC(),
		Products:       rows,
		Totals:         Totalize(rows),
		ABCCounts:      map[domain.ABCGroup]int{},
		Reconciliation: Reconcile(in.Products, in.Orders, in.Inbound),
		TariffsPending: in.Tariffs.Summarize(in.Products).Pending(),
	}
	for _, r := range rows {
		report.ABCCounts[r.ABC]++
	}
	return report
}

// Totalize sums report rows.
func Totalize(rows []domain.ProductProfit) domain.ProfitTotals {
	revenue, cost, fees, tax, net := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	var t domain.ProfitTotals
	for _, r := range rows {
		revenue = revenue.Add(decimal.NewFromFloat(r.TotalRevenue))
		cost = cost.Add(decimal.NewFromFloat(r.EstimatedCost))
		fees = fees.Add(decimal.NewFromFloat(r.Fees))
		tax = tax.Add(decimal.NewFromFloat(r.Tax))
		net = net.Add(decimal.NewFromFloat(r.NetProfit))
		t.UnitsSold += r.TotalSold
		if r.TotalSold > 0 && !r.HasCostPrice {
			t.MissingCost++
		}
	}
	t.Revenue = revenue.InexactFloat64()
	t.Cost = cost.InexactFloat64()
	t.Fees = fees.InexactFloat64()
	t.Tax = tax.InexactFloat64()
	t.NetProfit = net.InexactFloat64()
	if !revenue.IsZero() {
		t.ProfitMargin = net.Div(revenue).InexactFloat64()
	}
	return t
}
