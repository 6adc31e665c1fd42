package strategy

import (
	"context"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// WriteThrough writes to the backing store first, then the cache, so a
// store failure never leaves the cache holding data the store doesn't
// have. Reads are cache-then-store with population on miss.
type WriteThrough[K comparable, V any] struct {
	cache *cache.MultiTierCache[K, V]
	store store.BackingStore[K, V]
}

func NewWriteThrough[K comparable, V any](c *cache.MultiTierCache[K, V], s store.BackingStore[K, V]) *WriteThrough[K, V] {
	return &WriteThrough[K, V]{cache: c, store: s}
}

func (w *WriteThrough[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return load(ctx, w.cache, w.store, key, 0, false)
}

// Put saves to the store, then the cache. If the store save fails, the
// cache is left untouched.
func (w *WriteThrough[K, V]) Put(ctx context.Context, key K, value V, ttl time.Duration, hasTTL bool) error {
	if err := w.store.Save(ctx, key, value); err != nil {
		return wrapStoreErr("put", err)
	}
	w.cache.Insert(key, value, ttl, hasTTL)
	return nil
}

func (w *WriteThrough[K, V]) Remove(ctx context.Context, key K) error {
	if err := w.store.Delete(ctx, key); err != nil {
		return wrapStoreErr("remove", err)
	}
	w.cache.Remove(key)
	return nil
}
