package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

func memdb(t *testing.T) *CostPriceStore {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewCostPriceStore(db)
}

func TestCostPriceStore(t *testing.T) {
	ctx := context.Background()
	s := memdb(t)
	key := domain.ProductKey{Marketplace: domain.MarketplaceOzon, OfferID: "sku-1"}

	if _, err := s.Get(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, domain.CostPriceEntry{Key: key, CostPrice: 120}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, domain.CostPriceEntry{Key: key, CostPrice: 150}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || got != 150 {
		t.Fatalf("Get = %v, %v; want 150", got, err)
	}

	err = s.BulkSet(ctx, []domain.CostPriceEntry{
		{Key: domain.ProductKey{Marketplace: domain.MarketplaceOzon, OfferID: "sku-2"}, CostPrice: 10},
		{Key: domain.ProductKey{Marketplace: domain.MarketplaceWildberries, OfferID: "sku-1"}, CostPrice: 99},
	})
	if err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, domain.MarketplaceOzon)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list["sku-1"] != 150 || list["sku-2"] != 10 {
		t.Errorf("List(ozon) = %v", list)
	}

	bad := []domain.CostPriceEntry{
		{Key: domain.ProductKey{Marketplace: domain.MarketplaceOzon, OfferID: "sku-3"}, CostPrice: 5},
		{Key: domain.ProductKey{Marketplace: domain.MarketplaceOzon, OfferID: "sku-4"}, CostPrice: -1},
	}
	if err := s.BulkSet(ctx, bad); err == nil {
		t.Fatal("BulkSet with negative price succeeded")
	}
	if _, err := s.Get(ctx, bad[0].Key); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("rejected batch was partially written: err = %v", err)
	}
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	a := NewAuditStore(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	a.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, ev := range []string{"report.archived", "sync.failed", "report.archived"} {
		if err := a.Log(ctx, "acme", ev, map[string]any{"n": tick}); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Log(ctx, "other", "report.archived", nil); err != nil {
		t.Fatal(err)
	}

	all, err := a.List(ctx, "acme", domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List = %d entries, want 3", len(all))
	}
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Errorf("entries not newest first: %v then %v", all[0].CreatedAt, all[2].CreatedAt)
	}
	if all[1].Event != "sync.failed" {
		t.Errorf("middle event = %q", all[1].Event)
	}

	since := base.Add(2 * time.Minute)
	recent, err := a.List(ctx, "acme", domain.ListOpts{Since: &since, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || !recent[0].CreatedAt.Equal(base.Add(3*time.Minute)) {
		t.Errorf("List(since, limit 1) = %+v", recent)
	}

	other, err := a.List(ctx, "other", domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 || other[0].Detail != nil {
		t.Errorf("List(other) = %+v", other)
	}
}
