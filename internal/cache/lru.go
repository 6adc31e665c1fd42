// Package cache implements the bounded LRU tier (C3) and the three-tier
// MultiTierCache (C4), grounded on the original enterprise cache's tier
// semantics but backed by a maintained generic LRU implementation.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is the value stored alongside recency bookkeeping in the LRU tier.
type entry[V any] struct {
	value      V
	createdAt  time.Time
	lastAccess time.Time
	ttl        time.Duration
	hasTTL     bool
	hitCount   uint64
}

func (e entry[V]) expired(now time.Time) bool {
	return e.hasTTL && now.Sub(e.createdAt) > e.ttl
}

// LRUTier is a bounded, strictly-recency-ordered cache of capacity N. It
// wraps hashicorp/golang-lru/v2 (capacity and recency only) with the TTL and
// hit-count bookkeeping the wider MultiTierCache needs.
//
// The wrapped lru.Cache only serializes its own map/list structure; it
// hands callers a live *entry[V]. mu additionally guards every read or
// write of an entry's hitCount/lastAccess fields, so Get's "bump hit count,
// check expiry" sequence is atomic and no caller ever observes a
// half-updated entry.
type LRUTier[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	inner    *lru.Cache[K, *entry[V]]
}

// NewLRUTier constructs a tier with the given capacity. Capacity must be
// positive.
func NewLRUTier[K comparable, V any](capacity int) *LRUTier[K, V] {
	inner, err := lru.New[K, *entry[V]](capacity)
	if err != nil {
		// Only returns an error for non-positive size; a misconfigured
		// capacity is a programmer error, not a runtime condition to
		// recover from.
		panic(err)
	}
	return &LRUTier[K, V]{capacity: capacity, inner: inner}
}

// Get returns the value for k if present and not expired. A hit moves k to
// the most-recently-used position and increments its hit count. An expired
// entry is evicted on access and reported as a miss.
func (t *LRUTier[K, V]) Get(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.inner.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	now := time.Now()
	if e.expired(now) {
		t.inner.Remove(k)
		var zero V
		return zero, false
	}
	e.hitCount++
	e.lastAccess = now
	return e.value, true
}

// Peek returns the value for k without affecting recency or hit count.
func (t *LRUTier[K, V]) Peek(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.inner.Peek(k)
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Insert places (k, v) at the most-recently-used end with a fresh hit
// count. If k is absent and the tier is at capacity, the least-recently-used
// entry is evicted.
func (t *LRUTier[K, V]) Insert(k K, v V, ttl time.Duration, hasTTL bool) {
	now := time.Now()
	e := &entry[V]{
		value:      v,
		createdAt:  now,
		lastAccess: now,
		ttl:        ttl,
		hasTTL:     hasTTL,
	}

	t.mu.Lock()
	t.inner.Add(k, e)
	t.mu.Unlock()
}

// Remove deletes k from the tier, reporting whether it was present.
func (t *LRUTier[K, V]) Remove(k K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Remove(k)
}

// Contains reports whether k is present and unexpired, without affecting
// recency.
func (t *LRUTier[K, V]) Contains(k K) bool {
	_, ok := t.Peek(k)
	return ok
}

// Len returns the number of entries currently tracked, including expired
// entries that have not been purged yet. Len does not purge them; call
// PurgeExpired for that.
func (t *LRUTier[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Len()
}

// HitCount returns the hit count recorded for k, or 0 if absent.
func (t *LRUTier[K, V]) HitCount(k K) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.inner.Peek(k)
	if !ok {
		return 0
	}
	return e.hitCount
}

// LastAccess returns the last access time recorded for k.
func (t *LRUTier[K, V]) LastAccess(k K) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.inner.Peek(k)
	if !ok {
		return time.Time{}, false
	}
	return e.lastAccess, true
}

// Keys returns the tier's current keys in no particular order. Used only by
// maintenance sweeps; the tier otherwise exposes no iteration order per the
// spec.
func (t *LRUTier[K, V]) Keys() []K {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Keys()
}

// PurgeExpired removes every expired entry and returns how many were
// removed.
func (t *LRUTier[K, V]) PurgeExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, k := range t.inner.Keys() {
		e, ok := t.inner.Peek(k)
		if ok && e.expired(now) {
			t.inner.Remove(k)
			removed++
		}
	}
	return removed
}
