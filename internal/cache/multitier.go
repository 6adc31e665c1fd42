package cache

import (
	"sync/atomic"
	"time"
)

// Tier identifies which level of the hierarchy an entry currently occupies.
type Tier int

const (
	TierL1 Tier = iota
	TierL2
	TierL3
)

func (t Tier) String() string {
	switch t {
	case TierL1:
		return "L1"
	case TierL2:
		return "L2"
	case TierL3:
		return "L3"
	default:
		return "unknown"
	}
}

// Config controls a MultiTierCache's thresholds. L2Capacity and L3Capacity
// are retained for forward compatibility with a future bounded-L2/L3 mode
// but are not consulted for eviction today — see SPEC_FULL.md §4.4's
// decided open question. Only L1Capacity is enforced.
type Config struct {
	L1Capacity         int
	L2Capacity         int // documented no-op, see above
	L3Capacity         int // documented no-op, see above
	PromotionThreshold uint64
	DemotionThreshold  time.Duration
}

// DefaultConfig matches the original implementation's tuning.
func DefaultConfig() Config {
	return Config{
		L1Capacity:         1000,
		L2Capacity:         10000,
		L3Capacity:         100000,
		PromotionThreshold: 3,
		DemotionThreshold:  5 * time.Minute,
	}
}

// Stats accumulates hit/miss/promotion/demotion counters across a
// MultiTierCache's lifetime.
type Stats struct {
	L1Hits     uint64
	L2Hits     uint64
	L3Hits     uint64
	Misses     uint64
	Promotions uint64
	Demotions  uint64
}

// HitRate returns hits/(hits+misses), zero when the denominator is zero.
func (s Stats) HitRate() float64 {
	hits := s.L1Hits + s.L2Hits + s.L3Hits
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// MultiTierCache is a three-level cache: L1 (hot, LRU-bounded), L2 (warm),
// L3 (cold, the default landing tier for new inserts). A key appears in at
// most one tier at a time.
type MultiTierCache[K comparable, V any] struct {
	cfg Config

	l1 *LRUTier[K, V]
	l2 *unboundedTier[K, V]
	l3 *unboundedTier[K, V]

	l1Hits     atomic.Uint64
	l2Hits     atomic.Uint64
	l3Hits     atomic.Uint64
	misses     atomic.Uint64
	promotions atomic.Uint64
	demotions  atomic.Uint64
}

// New constructs a MultiTierCache with the given configuration.
func New[K comparable, V any](cfg Config) *MultiTierCache[K, V] {
	return &MultiTierCache[K, V]{
		cfg: cfg,
		l1:  NewLRUTier[K, V](cfg.L1Capacity),
		l2:  newUnboundedTier[K, V](),
		l3:  newUnboundedTier[K, V](),
	}
}

// Get probes L1, then L2, then L3. A hit in L2 or L3 that has reached the
// promotion threshold is moved up a tier before the value is returned, so
// subsequent reads observe the new tier.
func (c *MultiTierCache[K, V]) Get(k K) (V, bool) {
	if v, ok := c.l1.Get(k); ok {
		c.l1Hits.Add(1)
		return v, true
	}

	if e, ok, promote := c.l2.getAndBump(k, c.cfg.PromotionThreshold); ok {
		c.l2Hits.Add(1)
		if promote {
			c.l1.Insert(k, e.value, e.ttl, e.hasTTL)
			c.promotions.Add(1)
		}
		return e.value, true
	}

	if e, ok, promote := c.l3.getAndBump(k, c.cfg.PromotionThreshold); ok {
		c.l3Hits.Add(1)
		if promote {
			c.l2.put(k, &e)
			c.promotions.Add(1)
		}
		return e.value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Insert places (k, v) at L3 with fresh stats, the default landing tier for
// new entries.
func (c *MultiTierCache[K, V]) Insert(k K, v V, ttl time.Duration, hasTTL bool) {
	now := time.Now()
	c.l3.put(k, &entry[V]{value: v, createdAt: now, lastAccess: now, ttl: ttl, hasTTL: hasTTL})
}

// InsertHot places (k, v) directly at L1, replacing any existing L1 entry
// for k.
func (c *MultiTierCache[K, V]) InsertHot(k K, v V, ttl time.Duration, hasTTL bool) {
	c.l1.Insert(k, v, ttl, hasTTL)
}

// Remove deletes k from every tier, reporting success iff at least one tier
// removed it.
func (c *MultiTierCache[K, V]) Remove(k K) bool {
	r1 := c.l1.Remove(k)
	r2 := c.l2.remove(k)
	r3 := c.l3.remove(k)
	return r1 || r2 || r3
}

// Clear empties every tier.
func (c *MultiTierCache[K, V]) Clear() {
	for _, k := range c.l1.Keys() {
		c.l1.Remove(k)
	}
	for _, k := range c.l2.snapshotKeys() {
		c.l2.remove(k)
	}
	for _, k := range c.l3.snapshotKeys() {
		c.l3.remove(k)
	}
}

// Maintain runs one idempotent maintenance pass: demotes idle L2 entries to
// L3, and purges expired entries everywhere. L1 eviction is continuous (LRU
// capacity) and is not part of maintenance.
func (c *MultiTierCache[K, V]) Maintain() {
	now := time.Now()

	for _, k := range c.l2.snapshotKeys() {
		e, ok := c.l2.peek(k)
		if !ok {
			continue
		}
		if now.Sub(e.lastAccess) > c.cfg.DemotionThreshold {
			if c.l2.remove(k) {
				c.l3.put(k, &e)
				c.demotions.Add(1)
			}
		}
	}

	c.l1.PurgeExpired()
	purgeUnboundedExpired(c.l2)
	purgeUnboundedExpired(c.l3)
}

// purgeUnboundedExpired evicts every expired entry from t. peek does the
// actual eviction as a side effect of finding an expired entry, so this is
// just a sweep that forces that check for every resident key.
func purgeUnboundedExpired[K comparable, V any](t *unboundedTier[K, V]) {
	for _, k := range t.snapshotKeys() {
		t.peek(k)
	}
}

// Stats returns a snapshot of the accumulated counters.
func (c *MultiTierCache[K, V]) Stats() Stats {
	return Stats{
		L1Hits:     c.l1Hits.Load(),
		L2Hits:     c.l2Hits.Load(),
		L3Hits:     c.l3Hits.Load(),
		Misses:     c.misses.Load(),
		Promotions: c.promotions.Load(),
		Demotions:  c.demotions.Load(),
	}
}

// Len returns the total number of entries resident across all tiers.
func (c *MultiTierCache[K, V]) Len() int {
	return c.l1.Len() + c.l2.len() + c.l3.len()
}

// TierOf reports which tier currently holds k, if any. Intended for tests
// and diagnostics rather than hot-path use.
func (c *MultiTierCache[K, V]) TierOf(k K) (Tier, bool) {
	if c.l1.Contains(k) {
		return TierL1, true
	}
	if _, ok := c.l2.peek(k); ok {
		return TierL2, true
	}
	if _, ok := c.l3.peek(k); ok {
		return TierL3, true
	}
	return 0, false
}
