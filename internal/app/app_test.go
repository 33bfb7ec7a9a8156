package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/platform/fixture"
	"github.com/alanyoungcy/marketledger/internal/store/memory"
	"github.com/alanyoungcy/marketledger/internal/store/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type heldLock struct {
	keys []string
	held bool
}

func (l *heldLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.keys = append(l.keys, key)
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type countingArchiver struct{ n int }

func (c *countingArchiver) Archive(_ context.Context, r domain.ProfitReport) (string, error) {
	c.n++
	return "reports/" + r.ID, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = "report"
	cfg.Gateway.FixturePath = "unused"
	cfg.Fetch.BaseDelay.Duration = time.Millisecond
	cfg.Sellers = []config.SellerConfig{{ID: "acme", Marketplaces: []string{"ozon"}}}
	return &cfg
}

func TestSessionConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Profit.TaxRates = map[string]float64{"Ozon": 0.1}

	sc := sessionConfig(cfg, cfg.Sellers[0])
	if sc.Seller != "acme" || len(sc.Marketplaces) != 1 || sc.Marketplaces[0] != domain.MarketplaceOzon {
		t.Errorf("session config = %+v", sc)
	}
	if sc.Fetch.MaxConcurrency != 3 || sc.Tariff.BatchSize != 200 || sc.Store.OrdersTTL != 5*time.Minute {
		t.Errorf("defaults not mapped: %+v", sc)
	}
	if sc.Profit.TaxRates[domain.MarketplaceOzon] != 0.1 {
		t.Errorf("tax rates = %v", sc.Profit.TaxRates)
	}
}

func TestReportSellerHonoursLock(t *testing.T) {
	ctx := context.Background()
	p := fixture.New()
	p.SetProducts(domain.MarketplaceOzon, []domain.Product{
		{Marketplace: domain.MarketplaceOzon, OfferID: "o1", Name: "Mug", Price: 50_000},
	})

	a := New(testConfig(), quietLogger())
	arch := &countingArchiver{}
	lock := &heldLock{}
	deps := &Dependencies{
		Provider:    p,
		CostStore:   memory.NewCostPriceStore(),
		LockManager: lock,
		Archiver:    arch,
	}
	sessions, err := a.startSessions(ctx, deps)
	if err != nil {
		t.Fatal(err)
	}
	defer sessions[0].Close()

	if err := a.reportSeller(ctx, deps, sessions[0], 30); err != nil {
		t.Fatalf("reportSeller: %v", err)
	}
	if arch.n != 1 {
		t.Fatalf("archived %d reports, want 1", arch.n)
	}
	if len(lock.keys) != 1 || lock.keys[0] != "report:acme" {
		t.Errorf("lock keys = %v", lock.keys)
	}

	lock.held = true
	if err := a.reportSeller(ctx, deps, sessions[0], 30); err != nil {
		t.Fatalf("held lock should skip quietly, got %v", err)
	}
	if arch.n != 1 {
		t.Errorf("report archived while lock held")
	}
}

func TestWireWithFixtureAndNoBackends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(`{"products":{},"orders":{}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Gateway.FixturePath = path

	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Provider.(*fixture.Provider); !ok {
		t.Errorf("provider = %T, want fixture", deps.Provider)
	}
	if _, ok := deps.CostStore.(*memory.CostPriceStore); !ok {
		t.Errorf("cost store = %T, want memory", deps.CostStore)
	}
	if deps.Snapshots != nil || deps.LockManager != nil || deps.Archiver != nil {
		t.Error("disabled backends should stay nil")
	}
	if deps.Notifier == nil {
		t.Error("notifier should always be built")
	}
}

func TestWireWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(`{"products":{},"orders":{}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Gateway.FixturePath = path
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")

	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if _, ok := deps.CostStore.(*sqlite.CostPriceStore); !ok {
		t.Errorf("cost store = %T, want sqlite", deps.CostStore)
	}
	if _, ok := deps.AuditStore.(*sqlite.AuditStore); !ok {
		t.Errorf("audit store = %T, want sqlite", deps.AuditStore)
	}
}
