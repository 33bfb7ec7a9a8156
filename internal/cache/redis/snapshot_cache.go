package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// DefaultSnapshotTTL bounds how old a restored snapshot can be.
const DefaultSnapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache with one Redis hash per
// (seller, marketplace, kind).
//
// Key schema:
//
//	snapshot:{seller}:{marketplace}:{kind} - hash {data: JSON, fetched_at: RFC3339Nano}
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A non-positive ttl uses
// DefaultSnapshotTTL.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{c: c, ttl: ttl}
}

func (s *SnapshotCache) snapshotKey(seller string, mp domain.Marketplace, kind string) string {
	return s.c.key("snapshot", seller, string(mp), kind)
}

func (s *SnapshotCache) save(ctx context.Context, key string, v any, fetchedAt time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", key, err)
	}
	pipe := s.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "fetched_at", fetchedAt.UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SnapshotCache) load(ctx context.Context, key string, v any) (time.Time, error) {
	fields, err := s.c.rdb.HMGet(ctx, key, "data", "fetched_at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("redis: load snapshot %s: %w", key, err)
	}
	data, ok1 := fields[0].(string)
	at, ok2 := fields[1].(string)
	if !ok1 || !ok2 {
		return time.Time{}, domain.ErrNotFound
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: parse snapshot time %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return time.Time{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", key, err)
	}
	return fetchedAt, nil
}

// SaveProducts implements domain.SnapshotCache.
func (s *SnapshotCache) SaveProducts(ctx context.Context, seller string, mp domain.Marketplace, products []domain.Product, fetchedAt time.Time) error {
	return s.save(ctx, s.snapshotKey(seller, mp, "products"), products, fetchedAt)
}

// LoadProducts implements domain.SnapshotCache.
func (s *SnapshotCache) LoadProducts(ctx context.Context, seller string, mp domain.Marketplace) ([]domain.Product, time.Time, error) {
	var products []domain.Product
	at, err := s.load(ctx, s.snapshotKey(seller, mp, "products"), &products)
	return products, at, err
}

// SaveOrders implements domain.SnapshotCache.
func (s *SnapshotCache) SaveOrders(ctx context.Context, seller string, mp domain.Marketplace, orders []domain.Order, fetchedAt time.Time) error {
	return s.save(ctx, s.snapshotKey(seller, mp, "orders"), orders, fetchedAt)
}

// LoadOrders implements domain.SnapshotCache.
func (s *SnapshotCache) LoadOrders(ctx context.Context, seller string, mp domain.Marketplace) ([]domain.Order, time.Time, error) {
	var orders []domain.Order
	at, err := s.load(ctx, s.snapshotKey(seller, mp, "orders"), &orders)
	return orders, at, err
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
