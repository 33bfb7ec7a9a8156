package tariff

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MemoryCache is an in-process domain.TariffCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cached
	now     func() time.Time
}

type cached struct {
	info    domain.TariffInfo
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cached), now: time.Now}
}

// Get implements domain.TariffCache.
func (c *MemoryCache) Get(_ context.Context, key string) (domain.TariffInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.TariffInfo{}, domain.ErrNotFound
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return domain.TariffInfo{}, domain.ErrNotFound
	}
	return e.info, nil
}

// Set implements domain.TariffCache.
func (c *MemoryCache) Set(_ context.Context, key string, info domain.TariffInfo, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cached{info: info, expires: c.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ domain.TariffCache = (*MemoryCache)(nil)
