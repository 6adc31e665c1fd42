package strategy

import (
	"context"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// WriteAround writes directly to the backing store and invalidates any
// cached entry for the key, never populating the cache on write. This
// avoids cache churn for keys that are written far more often than read.
// Reads behave like ReadThrough.
type WriteAround[K comparable, V any] struct {
	cache *cache.MultiTierCache[K, V]
	store store.BackingStore[K, V]
}

func NewWriteAround[K comparable, V any](c *cache.MultiTierCache[K, V], s store.BackingStore[K, V]) *WriteAround[K, V] {
	return &WriteAround[K, V]{cache: c, store: s}
}

func (w *WriteAround[K, V]) Get(ctx context.Context, key K, ttl time.Duration, hasTTL bool) (V, bool, error) {
	return load(ctx, w.cache, w.store, key, ttl, hasTTL)
}

func (w *WriteAround[K, V]) Put(ctx context.Context, key K, value V) error {
	if err := w.store.Save(ctx, key, value); err != nil {
		return wrapStoreErr("put", err)
	}
	w.cache.Remove(key)
	return nil
}

func (w *WriteAround[K, V]) Remove(ctx context.Context, key K) error {
	if err := w.store.Delete(ctx, key); err != nil {
		return wrapStoreErr("remove", err)
	}
	w.cache.Remove(key)
	return nil
}
