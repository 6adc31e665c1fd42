package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// RefreshAheadConfig controls when a hit triggers a proactive background
// refresh.
type RefreshAheadConfig struct {
	// RefreshThreshold is the fraction of TTL elapsed (0,1) past which a
	// hit schedules an async reload instead of waiting for expiry.
	RefreshThreshold float64
}

func DefaultRefreshAheadConfig() RefreshAheadConfig {
	return RefreshAheadConfig{RefreshThreshold: 0.8}
}

// RefreshAheadConfigured behaves like ReadThrough on a miss. On a hit past the
// refresh threshold it schedules an async reload from the store and
// returns the still-valid cached value immediately without waiting for
// the refresh.
type RefreshAheadConfigured[K comparable, V any] struct {
	cache *cache.MultiTierCache[K, V]
	store store.BackingStore[K, V]
	cfg   RefreshAheadConfig

	mu        sync.Mutex
	insertedAt map[K]time.Time
	refreshing map[K]bool
}

func NewRefreshAhead[K comparable, V any](c *cache.MultiTierCache[K, V], s store.BackingStore[K, V], cfg RefreshAheadConfig) *RefreshAheadConfigured[K, V] {
	return &RefreshAheadConfigured[K, V]{
		cache:      c,
		store:      s,
		cfg:        cfg,
		insertedAt: make(map[K]time.Time),
		refreshing: make(map[K]bool),
	}
}

func (r *RefreshAheadConfigured[K, V]) Get(ctx context.Context, key K, ttl time.Duration) (V, bool, error) {
	if v, ok := r.cache.Get(key); ok {
		if r.shouldRefresh(key, ttl) {
			r.scheduleRefresh(key, ttl)
		}
		return v, true, nil
	}

	v, ok, err := r.store.Load(ctx, key)
	if err != nil {
		var zero V
		return zero, false, wrapStoreErr("load", err)
	}
	if !ok {
		var zero V
		return zero, false, nil
	}

	r.cache.Insert(key, v, ttl, true)
	r.recordInsert(key)
	return v, true, nil
}

func (r *RefreshAheadConfigured[K, V]) recordInsert(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertedAt[key] = time.Now()
}

func (r *RefreshAheadConfigured[K, V]) shouldRefresh(key K, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	insertedAt, ok := r.insertedAt[key]
	if !ok {
		return false
	}
	elapsed := time.Since(insertedAt)
	return float64(elapsed) >= r.cfg.RefreshThreshold*float64(ttl)
}

// scheduleRefresh reloads key from the store in the background and
// replaces the cached entry on success. Concurrent refreshes for the same
// key are collapsed to one in flight.
func (r *RefreshAheadConfigured[K, V]) scheduleRefresh(key K, ttl time.Duration) {
	r.mu.Lock()
	if r.refreshing[key] {
		r.mu.Unlock()
		return
	}
	r.refreshing[key] = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.refreshing, key)
			r.mu.Unlock()
		}()

		v, ok, err := r.store.Load(context.Background(), key)
		if err != nil {
			slog.Warn("refresh_ahead: background refresh failed", "error", err)
			return
		}
		if !ok {
			return
		}
		r.cache.Insert(key, v, ttl, true)
		r.recordInsert(key)
	}()
}

// Invalidate drops both the cached entry and its refresh bookkeeping.
func (r *RefreshAheadConfigured[K, V]) Invalidate(key K) {
	r.cache.Remove(key)
	r.mu.Lock()
	delete(r.insertedAt, key)
	r.mu.Unlock()
}
