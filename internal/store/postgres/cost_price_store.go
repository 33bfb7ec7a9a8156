package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// CostPriceStore implements domain.CostPriceStore using PostgreSQL.
type CostPriceStore struct {
	pool *pgxpool.Pool
}

// NewCostPriceStore creates a new CostPriceStore backed by the given pool.
func NewCostPriceStore(pool *pgxpool.Pool) *CostPriceStore {
	return &CostPriceStore{pool: pool}
}

const upsertCostPrice = `
	INSERT INTO cost_prices (marketplace, offer_id, cost_price, updated_at)
	VALUES ($1, $2, $3, COALESCE($4, NOW()))
	ON CONFLICT (marketplace, offer_id) DO UPDATE SET
		cost_price = EXCLUDED.cost_price,
		updated_at = EXCLUDED.updated_at`

// Get returns the declared cost price of key or domain.ErrNotFound.
func (s *CostPriceStore) Get(ctx context.Context, key domain.ProductKey) (float64, error) {
	var price float64
	err := s.pool.QueryRow(ctx,
		`SELECT cost_price::float8 FROM cost_prices WHERE marketplace = $1 AND offer_id = $2`,
		string(key.Marketplace), key.OfferID,
	).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: get cost price %s: %w", key, err)
	}
	return price, nil
}

// List returns every declared cost price of mp keyed by offer id.
func (s *CostPriceStore) List(ctx context.Context, mp domain.Marketplace) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT offer_id, cost_price::float8 FROM cost_prices WHERE marketplace = $1`, string(mp))
	if err != nil {
		return nil, fmt.Errorf("postgres: list cost prices %s: %w", mp, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var offerID string
		var price float64
		if err := rows.Scan(&offerID, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan cost price: %w", err)
		}
		out[offerID] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list cost prices rows: %w", err)
	}
	return out, nil
}

// Set upserts one cost price.
func (s *CostPriceStore) Set(ctx context.Context, e domain.CostPriceEntry) error {
	if _, err := s.pool.Exec(ctx, upsertCostPrice, costPriceArgs(e)...); err != nil {
		return fmt.Errorf("postgres: set cost price %s: %w", e.Key, err)
	}
	return nil
}

// BulkSet upserts many cost prices in one transaction.
func (s *CostPriceStore) BulkSet(ctx context.Context, entries []domain.CostPriceEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin bulk cost prices: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertCostPrice, costPriceArgs(e)...)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: bulk cost price item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: bulk cost prices: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit bulk cost prices: %w", err)
	}
	return nil
}

func costPriceArgs(e domain.CostPriceEntry) []any {
	var updatedAt any
	if !e.UpdatedAt.IsZero() {
		updatedAt = e.UpdatedAt
	}
	return []any{string(e.Key.Marketplace), e.Key.OfferID, e.CostPrice, updatedAt}
}

var _ domain.CostPriceStore = (*CostPriceStore)(nil)
