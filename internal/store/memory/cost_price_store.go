// Package memory provides in-process store implementations for sellers
// running without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// CostPriceStore implements domain.CostPriceStore in memory.
type CostPriceStore struct {
	mu     sync.RWMutex
	prices map[domain.ProductKey]domain.CostPriceEntry
}

// NewCostPriceStore returns an empty store.
func NewCostPriceStore() *CostPriceStore {
	return &CostPriceStore{prices: make(map[domain.ProductKey]domain.CostPriceEntry)}
}

// Get returns the declared cost price of key.
func (s *CostPriceStore) Get(_ context.Context, key domain.ProductKey) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.prices[key]
	if !ok {
		return 0, fmt.Errorf("memory: cost price %s: %w", key, domain.ErrNotFound)
	}
	return e.CostPrice, nil
}

// List returns every declared cost price of mp keyed by offer id.
func (s *CostPriceStore) List(_ context.Context, mp domain.Marketplace) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64)
	for k, e := range s.prices {
		if k.Marketplace == mp {
			out[k.OfferID] = e.CostPrice
		}
	}
	return out, nil
}

// Set declares one cost price, replacing any previous value.
func (s *CostPriceStore) Set(_ context.Context, entry domain.CostPriceEntry) error {
	if entry.CostPrice < 0 {
		return fmt.Errorf("memory: cost price %s: negative value %v", entry.Key, entry.CostPrice)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[entry.Key] = entry
	return nil
}

// BulkSet declares many cost prices atomically.
func (s *CostPriceStore) BulkSet(_ context.Context, entries []domain.CostPriceEntry) error {
	for _, e := range entries {
		if e.CostPrice < 0 {
			return fmt.Errorf("memory: cost price %s: negative value %v", e.Key, e.CostPrice)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.prices[e.Key] = e
	}
	return nil
}

var _ domain.CostPriceStore = (*CostPriceStore)(nil)
