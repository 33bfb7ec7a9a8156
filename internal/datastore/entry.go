package datastore

import (
	"context"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// failureCooldown keeps a source whose last fetch failed from being refetched
// on every read.
const failureCooldown = 30 * time.Second

// entry is one cached value with its refresh bookkeeping. All fields are
// guarded by Store.mu.
type entry[T any] struct {
	value       []T
	fetchedAt   time.Time
	ttl         time.Duration
	inFlight    int
	invalidated bool
	lastAttempt time.Time
	lastErr     error

	loaded     chan struct{}
	loadedDone bool
}

func newEntry[T any](ttl time.Duration) *entry[T] {
	return &entry[T]{ttl: ttl, loaded: make(chan struct{})}
}

func (e *entry[T]) snapshot() []T {
	out := make([]T, len(e.value))
	copy(out, e.value)
	return out
}

func (e *entry[T]) stale(now time.Time) bool {
	return e.fetchedAt.IsZero() || now.Sub(e.fetchedAt) >= e.ttl
}

// claimRefresh reports whether the caller should start a refresh, and if so
// marks the entry in flight.
func (e *entry[T]) claimRefresh(now time.Time) bool {
	if e.inFlight > 0 {
		return false
	}
	if !e.invalidated && !e.stale(now) {
		return false
	}
	if !e.invalidated && e.lastErr != nil && now.Sub(e.lastAttempt) < failureCooldown {
		return false
	}
	e.begin(now)
	return true
}

func (e *entry[T]) begin(now time.Time) {
	e.inFlight++
	e.lastAttempt = now
}

// finish records a completed fetch. A failed fetch keeps the previous value.
func (e *entry[T]) finish(value []T, at time.Time, err error) {
	if e.inFlight > 0 {
		e.inFlight--
	}
	if err != nil {
		e.lastErr = err
	} else {
		if value == nil {
			value = []T{}
		}
		e.value = value
		e.fetchedAt = at
		e.invalidated = false
		e.lastErr = nil
	}
	e.markLoaded()
}

func (e *entry[T]) markLoaded() {
	if !e.loadedDone {
		e.loadedDone = true
		close(e.loaded)
	}
}

func (e *entry[T]) state(now time.Time) EntryState {
	st := EntryState{
		Count:     len(e.value),
		FetchedAt: e.fetchedAt,
		Loading:   e.inFlight > 0,
		Loaded:    e.loadedDone,
		Stale:     e.invalidated || e.stale(now),
	}
	if e.lastErr != nil {
		st.Err = e.lastErr.Error()
	}
	return st
}

// EntryState describes one cached kind of one source.
type EntryState struct {
	Count     int
	FetchedAt time.Time
	Loading   bool
	// Loaded is true once the first fetch attempt finished, successfully or
	// not, or a snapshot was restored.
	Loaded bool
	Stale  bool
	Err    string
}

// SourceState describes one connected source.
type SourceState struct {
	Products EntryState
	Orders   EntryState
}

// Loading reports whether any fetch for the source is in flight.
func (s SourceState) Loading() bool { return s.Products.Loading || s.Orders.Loading }

// State returns the state of mp and false if it is not connected.
func (s *Store) State(mp domain.Marketplace) (SourceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pe, ok := s.products[mp]
	if !ok {
		return SourceState{}, false
	}
	now := s.now()
	return SourceState{Products: pe.state(now), Orders: s.orders[mp].state(now)}, true
}

// States returns the state of every connected source.
func (s *Store) States() map[domain.Marketplace]SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make(map[domain.Marketplace]SourceState, len(s.connected))
	for _, mp := range s.connected {
		out[mp] = SourceState{Products: s.products[mp].state(now), Orders: s.orders[mp].state(now)}
	}
	return out
}

// Ready reports whether every connected source finished its initial load.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mp := range s.connected {
		if !s.products[mp].loadedDone || !s.orders[mp].loadedDone {
			return false
		}
	}
	return true
}

// WaitReady triggers the initial load of every connected source and blocks
// until each finished or ctx ends.
func (s *Store) WaitReady(ctx context.Context) error {
	var waits []chan struct{}
	for _, mp := range s.Connected() {
		s.Products(mp)
		s.Orders(mp)
	}
	s.mu.Lock()
	for _, mp := range s.connected {
		waits = append(waits, s.products[mp].loaded, s.orders[mp].loaded)
	}
	s.mu.Unlock()

	for _, ch := range waits {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
	return nil
}
