package strategy

import (
	"context"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// CacheAside is the classic lazy-loading pattern: Put only writes to the
// store, leaving the caller responsible for invalidating or repopulating
// the cache afterward via Invalidate. Get behaves like ReadThrough.
type CacheAside[K comparable, V any] struct {
	cache *cache.MultiTierCache[K, V]
	store store.BackingStore[K, V]
}

func NewCacheAside[K comparable, V any](c *cache.MultiTierCache[K, V], s store.BackingStore[K, V]) *CacheAside[K, V] {
	return &CacheAside[K, V]{cache: c, store: s}
}

func (c *CacheAside[K, V]) Get(ctx context.Context, key K, ttl time.Duration, hasTTL bool) (V, bool, error) {
	return load(ctx, c.cache, c.store, key, ttl, hasTTL)
}

func (c *CacheAside[K, V]) Put(ctx context.Context, key K, value V) error {
	if err := c.store.Save(ctx, key, value); err != nil {
		return wrapStoreErr("put", err)
	}
	return nil
}

// Invalidate is the caller-driven step that keeps the cache from serving
// stale data after a Put; CacheAside does not call this automatically.
func (c *CacheAside[K, V]) Invalidate(key K) {
	c.cache.Remove(key)
}
