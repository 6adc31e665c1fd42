// Package strategy implements the cache consistency strategies (C5):
// WriteThrough, WriteBehind, ReadThrough, RefreshAhead, plus the
// supplemental WriteAround and CacheAside adapters carried over from the
// original cache strategy module. Each adapter composes a
// cache.MultiTierCache with a store.BackingStore; none of them touch the
// wire codec directly, matching the decision that Codec is a separate
// collaborator wired in by the caller, not baked into the strategy.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/ocx/coordination/internal/cache"
	"github.com/ocx/coordination/internal/store"
)

// Type identifies a strategy for logging and configuration.
type Type string

const (
	TypeWriteThrough Type = "write_through"
	TypeWriteBehind  Type = "write_behind"
	TypeWriteAround  Type = "write_around"
	TypeReadThrough  Type = "read_through"
	TypeCacheAside   Type = "cache_aside"
	TypeRefreshAhead Type = "refresh_ahead"
)

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("strategy: %s: %w", op, err)
}

// load is the common "check cache, fall through to store and populate"
// path shared by every strategy's Get.
func load[K comparable, V any](ctx context.Context, c *cache.MultiTierCache[K, V], s store.BackingStore[K, V], key K, ttl time.Duration, hasTTL bool) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, ok, err := s.Load(ctx, key)
	if err != nil {
		var zero V
		return zero, false, wrapStoreErr("load", err)
	}
	if !ok {
		var zero V
		return zero, false, nil
	}

	c.Insert(key, v, ttl, hasTTL)
	return v, true, nil
}
