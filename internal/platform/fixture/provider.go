// Package fixture implements domain.MarketplaceProvider over in-memory data.
// The daemon uses it for offline runs from a JSON fixture file; tests use it
// to count and fail provider calls.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Data is the on-disk fixture layout.
type Data struct {
	Products map[domain.Marketplace][]domain.Product     `json:"products"`
	Orders   map[domain.Marketplace][]domain.Order       `json:"orders"`
	Quotes   map[domain.Marketplace][]domain.TariffQuote `json:"quotes"`
	Ledger   map[domain.Marketplace][]domain.LedgerEntry `json:"ledger"`
}

// Provider is safe for concurrent use.
type Provider struct {
	mu    sync.Mutex
	data  Data
	errs  map[string]error
	calls map[string]int
	stock map[domain.Marketplace][]domain.StockUpdate

	// Hook, when set, runs at the start of every call. Tests use it to block.
	Hook func(ctx context.Context, mp domain.Marketplace, dt domain.DataType)
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		data: Data{
			Products: map[domain.Marketplace][]domain.Product{},
			Orders:   map[domain.Marketplace][]domain.Order{},
			Quotes:   map[domain.Marketplace][]domain.TariffQuote{},
			Ledger:   map[domain.Marketplace][]domain.LedgerEntry{},
		},
		errs:  map[string]error{},
		calls: map[string]int{},
		stock: map[domain.Marketplace][]domain.StockUpdate{},
	}
}

// Load reads a fixture file.
func Load(path string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	p := New()
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("fixture: decode %s: %w", path, err)
	}
	return p, nil
}

func callKey(mp domain.Marketplace, dt domain.DataType) string {
	return string(mp) + "/" + string(dt)
}

// SetProducts replaces the products served for mp.
func (p *Provider) SetProducts(mp domain.Marketplace, products []domain.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Products[mp] = products
}

// SetOrders replaces the orders served for mp.
func (p *Provider) SetOrders(mp domain.Marketplace, orders []domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Orders[mp] = orders
}

// SetQuotes replaces the tariff quotes served for mp.
func (p *Provider) SetQuotes(mp domain.Marketplace, quotes []domain.TariffQuote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Quotes[mp] = quotes
}

// SetLedger replaces the finance ledger served for mp.
func (p *Provider) SetLedger(mp domain.Marketplace, entries []domain.LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Ledger[mp] = entries
}

// FailWith makes every call of dt on mp return err. A nil err clears it.
func (p *Provider) FailWith(mp domain.Marketplace, dt domain.DataType, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, callKey(mp, dt))
		return
	}
	p.errs[callKey(mp, dt)] = err
}

// Calls returns how many times dt was requested for mp.
func (p *Provider) Calls(mp domain.Marketplace, dt domain.DataType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[callKey(mp, dt)]
}

// StockUpdates returns every stock update received for mp.
func (p *Provider) StockUpdates(mp domain.Marketplace) []domain.StockUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StockUpdate(nil), p.stock[mp]...)
}

func (p *Provider) begin(ctx context.Context, mp domain.Marketplace, dt domain.DataType) error {
	if p.Hook != nil {
		p.Hook(ctx, mp, dt)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[callKey(mp, dt)]++
	return p.errs[callKey(mp, dt)]
}

// Products implements domain.MarketplaceProvider.
func (p *Provider) Products(ctx context.Context, mp domain.Marketplace) ([]domain.Product, error) {
	if err := p.begin(ctx, mp, domain.DataProducts); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Product(nil), p.data.Products[mp]...), nil
}

// Orders implements domain.MarketplaceProvider. Orders outside q are dropped.
func (p *Provider) Orders(ctx context.Context, mp domain.Marketplace, q domain.OrderQuery) ([]domain.Order, error) {
	if err := p.begin(ctx, mp, domain.DataOrders); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Order
	for _, o := range p.data.Orders[mp] {
		if o.InRange(q.Since, q.Until) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Tariffs implements domain.MarketplaceProvider. Only marketplaces with a
// tariff API answer; queries without a matching quote are left out.
func (p *Provider) Tariffs(ctx context.Context, mp domain.Marketplace, queries []domain.TariffQuery) ([]domain.TariffQuote, error) {
	if err := p.begin(ctx, mp, domain.DataTariffs); err != nil {
		return nil, err
	}
	if mp.TariffCapability() != domain.TariffAPI {
		return nil, fmt.Errorf("fixture: tariffs %s: %w", mp, domain.ErrUnsupported)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.TariffQuote
	for _, q := range queries {
		for _, quote := range p.data.Quotes[mp] {
			if quote.CategoryCode == q.CategoryCode && quote.Price == q.Price {
				quote.OfferID = q.OfferID
				out = append(out, quote)
				break
			}
		}
	}
	return out, nil
}

// FinanceLedger implements domain.MarketplaceProvider.
func (p *Provider) FinanceLedger(ctx context.Context, mp domain.Marketplace, offerIDs []string) ([]domain.LedgerEntry, error) {
	if err := p.begin(ctx, mp, domain.DataFinanceLedger); err != nil {
		return nil, err
	}
	if mp.TariffCapability() != domain.TariffLedger {
		return nil, fmt.Errorf("fixture: finance ledger %s: %w", mp, domain.ErrUnsupported)
	}
	want := make(map[string]bool, len(offerIDs))
	for _, id := range offerIDs {
		want[id] = true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range p.data.Ledger[mp] {
		if want[e.OfferID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// UpdateStock implements domain.MarketplaceProvider.
func (p *Provider) UpdateStock(ctx context.Context, mp domain.Marketplace, updates []domain.StockUpdate) error {
	if err := p.begin(ctx, mp, domain.DataUpdateStock); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stock[mp] = append(p.stock[mp], updates...)
	return nil
}

var _ domain.MarketplaceProvider = (*Provider)(nil)
