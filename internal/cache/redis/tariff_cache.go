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

// TariffCache implements domain.TariffCache with JSON string values. Expiry is
// left to Redis.
type TariffCache struct {
	c *Client
}

// NewTariffCache creates a TariffCache backed by c.
func NewTariffCache(c *Client) *TariffCache {
	return &TariffCache{c: c}
}

// Get implements domain.TariffCache.
func (t *TariffCache) Get(ctx context.Context, key string) (domain.TariffInfo, error) {
	data, err := t.c.rdb.Get(ctx, t.c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TariffInfo{}, domain.ErrNotFound
		}
		return domain.TariffInfo{}, fmt.Errorf("redis: get tariff %s: %w", key, err)
	}
	var info domain.TariffInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.TariffInfo{}, fmt.Errorf("redis: unmarshal tariff %s: %w", key, err)
	}
	return info, nil
}

// Set implements domain.TariffCache.
func (t *TariffCache) Set(ctx context.Context, key string, info domain.TariffInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal tariff %s: %w", key, err)
	}
	if err := t.c.rdb.Set(ctx, t.c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set tariff %s: %w", key, err)
	}
	return nil
}

var _ domain.TariffCache = (*TariffCache)(nil)
