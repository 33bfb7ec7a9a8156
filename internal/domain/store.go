package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CostPriceStore persists seller-declared cost prices keyed by
// (marketplace, offer id).
type CostPriceStore interface {
	// Get returns ErrNotFound when no cost price is declared.
	Get(ctx context.Context, key ProductKey) (float64, error)
	// List returns every declared cost price for a marketplace keyed by offer id.
	List(ctx context.Context, mp Marketplace) (map[string]float64, error)
	Set(ctx context.Context, entry CostPriceEntry) error
	BulkSet(ctx context.Context, entries []CostPriceEntry) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Seller    string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, seller, event string, detail map[string]any) error
	List(ctx context.Context, seller string, opts ListOpts) ([]AuditEntry, error)
}
