package strategy

import (
	"context"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// ReadThrough does not offer a Put: mutations bypass the cache entirely
// and callers write to the store directly. Get reads cache-then-store and
// populates the cache on miss.
type ReadThrough[K comparable, V any] struct {
	cache *cache.MultiTierCache[K, V]
	store store.BackingStore[K, V]
}

func NewReadThrough[K comparable, V any](c *cache.MultiTierCache[K, V], s store.BackingStore[K, V]) *ReadThrough[K, V] {
	return &ReadThrough[K, V]{cache: c, store: s}
}

func (r *ReadThrough[K, V]) Get(ctx context.Context, key K, ttl time.Duration, hasTTL bool) (V, bool, error) {
	return load(ctx, r.cache, r.store, key, ttl, hasTTL)
}

// Invalidate forces the next Get to reload from the store.
func (r *ReadThrough[K, V]) Invalidate(key K) {
	r.cache.Remove(key)
}
