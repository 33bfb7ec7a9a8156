package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// CostPriceStore implements domain.CostPriceStore on SQLite.
type CostPriceStore struct {
	db *sqlx.DB
}

// NewCostPriceStore creates a CostPriceStore on db.
func NewCostPriceStore(db *sqlx.DB) *CostPriceStore {
	return &CostPriceStore{db: db}
}

const upsertCostPrice = `
	INSERT INTO cost_prices(marketplace, offer_id, cost_price, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(marketplace, offer_id) DO UPDATE SET
		cost_price = excluded.cost_price,
		updated_at = excluded.updated_at`

type costPriceRow struct {
	OfferID   string  `db:"offer_id"`
	CostPrice float64 `db:"cost_price"`
}

// Get returns the declared cost price of key or domain.ErrNotFound.
func (s *CostPriceStore) Get(ctx context.Context, key domain.ProductKey) (float64, error) {
	var price float64
	err := s.db.GetContext(ctx, &price,
		`SELECT cost_price FROM cost_prices WHERE marketplace = ? AND offer_id = ?`,
		string(key.Marketplace), key.OfferID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("sqlite: get cost price %s: %w", key, err)
	}
	return price, nil
}

// List returns every declared cost price of mp keyed by offer id.
func (s *CostPriceStore) List(ctx context.Context, mp domain.Marketplace) (map[string]float64, error) {
	var rows []costPriceRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT offer_id, cost_price FROM cost_prices WHERE marketplace = ?`, string(mp)); err != nil {
		return nil, fmt.Errorf("sqlite: list cost prices %s: %w", mp, err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.OfferID] = r.CostPrice
	}
	return out, nil
}

// Set upserts one cost price.
func (s *CostPriceStore) Set(ctx context.Context, e domain.CostPriceEntry) error {
	if e.CostPrice < 0 {
		return fmt.Errorf("sqlite: cost price %s: negative value %v", e.Key, e.CostPrice)
	}
	if _, err := s.db.ExecContext(ctx, upsertCostPrice, costPriceArgs(e)...); err != nil {
		return fmt.Errorf("sqlite: set cost price %s: %w", e.Key, err)
	}
	return nil
}

// BulkSet upserts many cost prices in one transaction.
func (s *CostPriceStore) BulkSet(ctx context.Context, entries []domain.CostPriceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.CostPrice < 0 {
			return fmt.Errorf("sqlite: cost price %s: negative value %v", e.Key, e.CostPrice)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin bulk cost prices: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, upsertCostPrice)
	if err != nil {
		return fmt.Errorf("sqlite: prepare bulk cost prices: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, costPriceArgs(e)...); err != nil {
			return fmt.Errorf("sqlite: bulk cost price item %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit bulk cost prices: %w", err)
	}
	return nil
}

func costPriceArgs(e domain.CostPriceEntry) []any {
	at := e.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return []any{string(e.Key.Marketplace), e.Key.OfferID, e.CostPrice, formatTime(at)}
}

var _ domain.CostPriceStore = (*CostPriceStore)(nil)
