package tariff

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
	"github.com/alanyoungcy/marketledger/internal/platform/fixture"
)

func newResolver(t *testing.T, cfg Config) (*Resolver, *fixture.Provider) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := fetchqueue.New(fetchqueue.Config{MaxConcurrency: 2, MaxRetries: 0, BaseDelay: time.Millisecond}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	p := fixture.New()
	if cfg.Seller == "" {
		cfg.Seller = "seller-1"
	}
	return New(cfg, p, q, nil, logger), p
}

type staticSource map[domain.Marketplace][]domain.Product

func (s staticSource) Connected() []domain.Marketplace {
	var out []domain.Marketplace
	for _, mp := range domain.Marketplaces {
		if _, ok := s[mp]; ok {
			out = append(out, mp)
		}
	}
	return out
}

func (s staticSource) Products(mp domain.Marketplace) []domain.Product { return s[mp] }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func checkInvariants(t *testing.T, info domain.TariffInfo) {
	t.Helper()
	if !approx(info.TotalFee, info.AgencyCommission+info.Fulfillment+info.Delivery+info.Sorting) {
		t.Errorf("total %v != commission %v + logistics parts", info.TotalFee, info.AgencyCommission)
	}
	if !approx(info.Logistics, info.Fulfillment+info.Delivery+info.Sorting) {
		t.Errorf("logistics %v does not add up", info.Logistics)
	}
	if info.Price > 0 && info.CommissionPercent > info.TariffPercent+1e-9 {
		t.Errorf("commission percent %v above tariff percent %v", info.CommissionPercent, info.TariffPercent)
	}
}

func TestEstimateBandedScenario(t *testing.T) {
	info, ok := Estimate(domain.MarketplaceWildberries, 100_000)
	if !ok {
		t.Fatal("expected a formula for wildberries")
	}
	if info.AgencyCommission != 15_000 {
		t.Errorf("commission = %v, want 15000", info.AgencyCommission)
	}
	if info.Logistics != 8_000 {
		t.Errorf("logistics = %v, want 8000", info.Logistics)
	}
	if info.TotalFee != 23_000 {
		t.Errorf("total = %v, want 23000", info.TotalFee)
	}
	if !approx(info.TariffPercent, 23) {
		t.Errorf("tariff percent = %v, want 23", info.TariffPercent)
	}
	if info.Real {
		t.Error("an estimate must not be marked real")
	}
}

func TestEstimateFormulas(t *testing.T) {
	tests := []struct {
		name       string
		mp         domain.Marketplace
		price      float64
		commission float64
		logistics  float64
	}{
		{"uzum lowest band", domain.MarketplaceUzum, 30_000, 6_300, 4_000},
		{"uzum second band", domain.MarketplaceUzum, 100_000, 16_000, 8_000},
		{"uzum third band", domain.MarketplaceUzum, 500_000, 65_000, 20_000},
		{"uzum top band", domain.MarketplaceUzum, 2_000_000, 220_000, 20_000},
		{"uzum band edge", domain.MarketplaceUzum, 50_000, 8_000, 8_000},
		{"ozon", domain.MarketplaceOzon, 600_000, 108_000, 20_000},
		{"wildberries small", domain.MarketplaceWildberries, 10_000, 1_500, 4_000},
		{"yandex without quote", domain.MarketplaceYandex, 40_000, 6_000, 4_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := Estimate(tt.mp, tt.price)
			if !ok {
				t.Fatal("expected a formula")
			}
			if !approx(info.AgencyCommission, tt.commission) {
				t.Errorf("commission = %v, want %v", info.AgencyCommission, tt.commission)
			}
			if info.Logistics != tt.logistics {
				t.Errorf("logistics = %v, want %v", info.Logistics, tt.logistics)
			}
			checkInvariants(t, info)
		})
	}

	if _, ok := Estimate("etsy", 1000); ok {
		t.Error("unknown marketplace must have no formula")
	}
}

func TestResolveAPIGroupsBySignature(t *testing.T) {
	r, p := newResolver(t, Config{})
	mp := domain.MarketplaceYandex
	p.SetQuotes(mp, []domain.TariffQuote{
		{CategoryCode: 10, Price: 1000, AgencyCommission: 100, Fulfillment: 30, Delivery: 50, Sorting: 20},
		{CategoryCode: 20, Price: 500, AgencyCommission: 40, Delivery: 60},
	})
	products := []domain.Product{
		{Marketplace: mp, OfferID: "a", Price: 1000, CategoryCode: 10},
		{Marketplace: mp, OfferID: "b", Price: 1000, CategoryCode: 10},
		{Marketplace: mp, OfferID: "c", Price: 500, CategoryCode: 20},
		{Marketplace: mp, OfferID: "no-category", Price: 500},
	}
	src := staticSource{mp: products}

	got := r.Resolve(context.Background(), src)
	if len(got) != 3 {
		t.Fatalf("expected 3 resolved products, got %d", len(got))
	}
	a := got[domain.ProductKey{Marketplace: mp, OfferID: "a"}]
	if !a.Real || a.Source != domain.TariffSourceAPI {
		t.Errorf("expected a real api tariff, got %+v", a)
	}
	if a.TotalFee != 200 || !approx(a.TariffPercent, 20) {
		t.Errorf("unexpected tariff %+v", a)
	}
	if b := got[domain.ProductKey{Marketplace: mp, OfferID: "b"}]; !reflect.DeepEqual(a, b) {
		t.Errorf("products sharing a signature must share the tariff: %+v vs %+v", a, b)
	}
	if _, ok := got[domain.ProductKey{Marketplace: mp, OfferID: "no-category"}]; ok {
		t.Error("a product without category code must stay unresolved")
	}
	for _, info := range got {
		checkInvariants(t, info)
	}

	again := r.Resolve(context.Background(), src)
	if !reflect.DeepEqual(got, again) {
		t.Error("second resolve must give identical results")
	}
	if calls := p.Calls(mp, domain.DataTariffs); calls != 1 {
		t.Errorf("expected 1 tariff call across two resolves, got %d", calls)
	}
}

func TestResolveAPIBatches(t *testing.T) {
	r, p := newResolver(t, Config{BatchSize: 2})
	mp := domain.MarketplaceYandex

	var products []domain.Product
	var quotes []domain.TariffQuote
	for i := 1; i <= 5; i++ {
		price := float64(i * 1000)
		products = append(products, domain.Product{Marketplace: mp, OfferID: string(rune('a' + i)), Price: price, CategoryCode: 7})
		quotes = append(quotes, domain.TariffQuote{CategoryCode: 7, Price: price, AgencyCommission: price / 10})
	}
	p.SetQuotes(mp, quotes)

	got := r.ResolveMarketplace(context.Background(), mp, products)
	if len(got) != 5 {
		t.Errorf("expected 5 resolved products, got %d", len(got))
	}
	if calls := p.Calls(mp, domain.DataTariffs); calls != 3 {
		t.Errorf("expected 3 batches of at most 2, got %d calls", calls)
	}
}

func TestResolveAPIBatchFailureIsNotCached(t *testing.T) {
	r, p := newResolver(t, Config{})
	mp := domain.MarketplaceYandex
	p.SetQuotes(mp, []domain.TariffQuote{{CategoryCode: 1, Price: 900, AgencyCommission: 90}})
	products := []domain.Product{{Marketplace: mp, OfferID: "a", Price: 900, CategoryCode: 1}}

	p.FailWith(mp, domain.DataTariffs, errors.New("upstream 503"))
	if got := r.ResolveMarketplace(context.Background(), mp, products); len(got) != 0 {
		t.Fatalf("expected no tariffs after a failed batch, got %d", len(got))
	}

	p.FailWith(mp, domain.DataTariffs, nil)
	got := r.ResolveMarketplace(context.Background(), mp, products)
	if len(got) != 1 {
		t.Fatalf("expected the tariff once the provider recovers, got %d", len(got))
	}
	if calls := p.Calls(mp, domain.DataTariffs); calls != 2 {
		t.Errorf("expected the failure not to be cached, got %d calls", calls)
	}
}

func TestResolveLedger(t *testing.T) {
	r, p := newResolver(t, Config{})
	mp := domain.MarketplaceUzum
	p.SetLedger(mp, []domain.LedgerEntry{
		{OfferID: "a", Description: "Komissiya", Amount: -3000, Quantity: 2},
		{OfferID: "a", Description: "Yetkazib berish", Amount: -1000, Quantity: 2},
		{OfferID: "a", Description: "Хранение на складе", Amount: -200, Quantity: 2},
		{OfferID: "a", Description: "Refund adjustment", Amount: 999, Quantity: 1},
	})
	products := []domain.Product{
		{Marketplace: mp, OfferID: "a", Price: 20_000},
		{Marketplace: mp, OfferID: "b", Price: 100_000},
	}

	got := r.ResolveMarketplace(context.Background(), mp, products)

	a := got[domain.ProductKey{Marketplace: mp, OfferID: "a"}]
	if !a.Real || a.Source != domain.TariffSourceLedger {
		t.Fatalf("expected a real ledger tariff, got %+v", a)
	}
	if a.AgencyCommission != 1500 || a.Delivery != 500 || a.Fulfillment != 100 {
		t.Errorf("unexpected per-unit charges %+v", a)
	}
	if a.TotalFee != 2100 {
		t.Errorf("total = %v, want 2100", a.TotalFee)
	}

	b := got[domain.ProductKey{Marketplace: mp, OfferID: "b"}]
	if b.Real || b.Source != domain.TariffSourceEstimate {
		t.Errorf("expected the tiered estimate without ledger lines, got %+v", b)
	}
	if b.TotalFee != 24_000 {
		t.Errorf("tiered total = %v, want 24000", b.TotalFee)
	}

	// a is cached, b was only estimated and is looked up again.
	r.ResolveMarketplace(context.Background(), mp, products)
	if calls := p.Calls(mp, domain.DataFinanceLedger); calls != 2 {
		t.Errorf("expected 2 ledger calls across two resolves, got %d", calls)
	}
	r.ResolveMarketplace(context.Background(), mp, products[:1])
	if calls := p.Calls(mp, domain.DataFinanceLedger); calls != 2 {
		t.Errorf("expected the ledger tariff of a to be cached, got %d calls", calls)
	}
}

func TestResolveLedgerPicksUpNewLinesForEstimatedProducts(t *testing.T) {
	r, p := newResolver(t, Config{})
	mp := domain.MarketplaceUzum
	products := []domain.Product{{Marketplace: mp, OfferID: "b", Price: 100_000}}

	first := r.ResolveMarketplace(context.Background(), mp, products)[products[0].Key()]
	if first.Real {
		t.Fatalf("expected an estimate before ledger lines exist, got %+v", first)
	}

	p.SetLedger(mp, []domain.LedgerEntry{
		{OfferID: "b", Description: "Komissiya", Amount: -12_000, Quantity: 1},
	})
	second := r.ResolveMarketplace(context.Background(), mp, products)[products[0].Key()]
	if !second.Real || second.Source != domain.TariffSourceLedger {
		t.Fatalf("expected the ledger tariff once lines appear, got %+v", second)
	}
	if second.TotalFee != 12_000 {
		t.Errorf("total = %v, want 12000", second.TotalFee)
	}
}

func TestFromLedgerNetsReversals(t *testing.T) {
	tests := []struct {
		name           string
		entries        []domain.LedgerEntry
		wantCommission float64
		wantReal       bool
	}{
		{
			name: "reversal of one unit",
			entries: []domain.LedgerEntry{
				{OfferID: "a", Description: "Komissiya", Amount: -3000, Quantity: 2},
				{OfferID: "a", Description: "Komissiya qaytarish", Amount: 1500, Quantity: 1},
			},
			wantCommission: 750,
			wantReal:       true,
		},
		{
			name: "fully reversed",
			entries: []domain.LedgerEntry{
				{OfferID: "a", Description: "Komissiya", Amount: -1000, Quantity: 1},
				{OfferID: "a", Description: "Komissiya qaytarish", Amount: 1000, Quantity: 1},
			},
		},
		{
			name: "reversal larger than charges",
			entries: []domain.LedgerEntry{
				{OfferID: "a", Description: "Komissiya", Amount: -500, Quantity: 1},
				{OfferID: "a", Description: "Komissiya qaytarish", Amount: 2000, Quantity: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fromLedger(tt.entries, map[string]float64{"a": 10_000})["a"]
			if ok != tt.wantReal {
				t.Fatalf("tariff present = %v, want %v (%+v)", ok, tt.wantReal, got)
			}
			if ok && !approx(got.AgencyCommission, tt.wantCommission) {
				t.Errorf("commission = %v, want %v", got.AgencyCommission, tt.wantCommission)
			}
		})
	}
}

func TestResolveLedgerUnavailableEstimatesWithoutCaching(t *testing.T) {
	r, p := newResolver(t, Config{})
	mp := domain.MarketplaceUzum
	p.FailWith(mp, domain.DataFinanceLedger, errors.New("timeout"))
	products := []domain.Product{{Marketplace: mp, OfferID: "a", Price: 30_000}}

	got := r.ResolveMarketplace(context.Background(), mp, products)
	info, ok := got[products[0].Key()]
	if !ok || info.Real {
		t.Fatalf("expected an estimate, got %+v (ok=%v)", info, ok)
	}

	r.ResolveMarketplace(context.Background(), mp, products)
	if calls := p.Calls(mp, domain.DataFinanceLedger); calls != 2 {
		t.Errorf("expected the ledger to be retried on the next resolve, got %d calls", calls)
	}
}

func TestResolveEstimatedMarketplacesMakeNoCalls(t *testing.T) {
	r, p := newResolver(t, Config{})
	src := staticSource{
		domain.MarketplaceWildberries: {{Marketplace: domain.MarketplaceWildberries, OfferID: "w", Price: 100_000}},
		domain.MarketplaceOzon:        {{Marketplace: domain.MarketplaceOzon, OfferID: "o", Price: 100_000}},
	}

	got := r.Resolve(context.Background(), src)
	if len(got) != 2 {
		t.Fatalf("expected 2 tariffs, got %d", len(got))
	}
	if got[domain.ProductKey{Marketplace: domain.MarketplaceOzon, OfferID: "o"}].TotalFee != 26_000 {
		t.Error("ozon total should be 18% plus 8000")
	}
	for _, mp := range []domain.Marketplace{domain.MarketplaceWildberries, domain.MarketplaceOzon} {
		if p.Calls(mp, domain.DataTariffs)+p.Calls(mp, domain.DataFinanceLedger) != 0 {
			t.Errorf("expected no provider calls for %s", mp)
		}
	}
}

func TestClassifyLedgerLines(t *testing.T) {
	tests := []struct {
		description string
		want        lineKind
	}{
		{"Sales commission", lineCommission},
		{"Komissiya Uzum", lineCommission},
		{"Комиссия маркетплейса", lineCommission},
		{"Вознаграждение", lineCommission},
		{"Logistics to buyer", lineDelivery},
		{"Доставка до ПВЗ", lineDelivery},
		{"Yetkazib berish", lineDelivery},
		{"FBO fulfilment", lineFulfillment},
		{"Storage fee", lineFulfillment},
		{"Sorting logistics", lineSorting},
		{"Payout", lineOther},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := classify(tt.description); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.description, got, tt.want)
			}
		})
	}
}
