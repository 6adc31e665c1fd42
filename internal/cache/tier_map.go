package cache

import (
	"sync"
	"time"
)

// unboundedTier is a plain, size-unbounded map of entries used for L2 and
// L3. Unlike LRUTier it enforces no capacity: entries leave only via
// demotion, expiry, explicit remove, or invalidation. This mirrors the
// original implementation's L2/L3 behavior exactly — see SPEC_FULL.md's
// decided L2/L3 bounding question.
//
// No method hands back a live *entry[V]: the tier owns its entries'
// hitCount/lastAccess fields exclusively, and every mutation of them
// happens under mu. Callers outside this file only ever see value copies.
type unboundedTier[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

func newUnboundedTier[K comparable, V any]() *unboundedTier[K, V] {
	return &unboundedTier[K, V]{entries: make(map[K]*entry[V])}
}

// peek returns a value copy of k's entry without touching hit-count or
// recency bookkeeping. Used by maintenance sweeps and tier lookups that
// don't represent a cache access.
func (t *unboundedTier[K, V]) peek(k K) (entry[V], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[k]
	if !ok {
		return entry[V]{}, false
	}
	if e.expired(time.Now()) {
		delete(t.entries, k)
		return entry[V]{}, false
	}
	return *e, true
}

// getAndBump records a hit for k under the tier's own lock: the hit count
// and last-access time are updated on the entry while mu is held, and the
// promotion decision is made from that same, non-racy read. It reports
// whether k was present and unexpired, and whether its hit count has now
// reached threshold. A promoted entry is removed from this tier so the
// caller can hand it to the tier above without two goroutines racing to
// promote it twice.
func (t *unboundedTier[K, V]) getAndBump(k K, threshold uint64) (value entry[V], ok bool, promote bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[k]
	if !ok {
		return entry[V]{}, false, false
	}
	if e.expired(time.Now()) {
		delete(t.entries, k)
		return entry[V]{}, false, false
	}

	e.hitCount++
	e.lastAccess = time.Now()
	promote = e.hitCount >= threshold
	if promote {
		delete(t.entries, k)
	}
	return *e, true, promote
}

func (t *unboundedTier[K, V]) put(k K, e *entry[V]) {
	t.mu.Lock()
	t.entries[k] = e
	t.mu.Unlock()
}

func (t *unboundedTier[K, V]) remove(k K) bool {
	t.mu.Lock()
	_, ok := t.entries[k]
	delete(t.entries, k)
	t.mu.Unlock()
	return ok
}

func (t *unboundedTier[K, V]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// snapshotKeys returns the current keys for maintenance sweeps.
func (t *unboundedTier[K, V]) snapshotKeys() []K {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]K, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}
