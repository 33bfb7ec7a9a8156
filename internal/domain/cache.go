package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the last successful fetch of a source outside the
// process so a restarted session can serve stale-but-available data.
type SnapshotCache interface {
	SaveProducts(ctx context.Context, seller string, mp Marketplace, products []Product, fetchedAt time.Time) error
	LoadProducts(ctx context.Context, seller string, mp Marketplace) ([]Product, time.Time, error)
	SaveOrders(ctx context.Context, seller string, mp Marketplace, orders []Order, fetchedAt time.Time) error
	LoadOrders(ctx context.Context, seller string, mp Marketplace) ([]Order, time.Time, error)
}

// TariffCache stores resolved tariffs by signature key.
type TariffCache interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (TariffInfo, error)
	Set(ctx context.Context, key string, info TariffInfo, ttl time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
