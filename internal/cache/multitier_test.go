package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/cache"
)

func TestLRUTierEvictsLeastRecentlyUsed(t *testing.T) {
	// S2: capacity 2, insert 1,2,3 with no intervening gets.
	tier := cache.NewLRUTier[int, string](2)
	tier.Insert(1, "one", 0, false)
	tier.Insert(2, "two", 0, false)
	tier.Insert(3, "three", 0, false)

	_, ok := tier.Get(1)
	assert.False(t, ok)

	v, ok := tier.Get(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	v, ok = tier.Get(3)
	require.True(t, ok)
	assert.Equal(t, "three", v)
}

func TestLRUTierTTLExpiry(t *testing.T) {
	tier := cache.NewLRUTier[int, string](10)
	tier.Insert(1, "one", 10*time.Millisecond, true)

	v, ok := tier.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = tier.Get(1)
	assert.False(t, ok)
}

func TestMultiTierCachePromotionFlow(t *testing.T) {
	// S1: insert at L3, repeated gets promote through L2 to L1.
	cfg := cache.DefaultConfig()
	cfg.PromotionThreshold = 2
	c := cache.New[int, string](cfg)

	c.Insert(1, "one", 0, false)

	tier, ok := c.TierOf(1)
	require.True(t, ok)
	assert.Equal(t, cache.TierL3, tier)

	for i := 0; i < 5; i++ {
		v, ok := c.Get(1)
		require.True(t, ok)
		assert.Equal(t, "one", v)
	}

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.L3Hits, uint64(1))
	assert.GreaterOrEqual(t, stats.Promotions, uint64(1))

	finalTier, ok := c.TierOf(1)
	require.True(t, ok)
	assert.Equal(t, cache.TierL1, finalTier)
}

func TestMultiTierCacheTierDisjointness(t *testing.T) {
	c := cache.New[int, string](cache.DefaultConfig())
	c.Insert(1, "one", 0, false)
	c.InsertHot(2, "two", 0, false)

	_, okL3 := c.TierOf(1)
	assert.True(t, okL3)
	_, okL1 := c.TierOf(2)
	assert.True(t, okL1)

	// Promote 1 manually by driving enough hits, then ensure it's only in one tier.
	for i := 0; i < int(cache.DefaultConfig().PromotionThreshold)+1; i++ {
		c.Get(1)
	}
	count := 0
	for _, k := range []int{1} {
		if _, ok := c.TierOf(k); ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMultiTierCacheHitMissAccounting(t *testing.T) {
	c := cache.New[int, string](cache.DefaultConfig())
	c.Insert(1, "one", 0, false)

	totalCalls := 0
	c.Get(1)
	totalCalls++
	c.Get(2)
	totalCalls++
	c.Get(1)
	totalCalls++

	stats := c.Stats()
	sum := stats.L1Hits + stats.L2Hits + stats.L3Hits + stats.Misses
	assert.Equal(t, uint64(totalCalls), sum)
}

func TestMultiTierCacheTTLExpiry(t *testing.T) {
	c := cache.New[int, string](cache.DefaultConfig())
	c.Insert(1, "one", 10*time.Millisecond, true)

	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestMultiTierCacheRemove(t *testing.T) {
	c := cache.New[int, string](cache.DefaultConfig())
	c.Insert(1, "one", 0, false)
	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestMultiTierCacheMaintenanceDemotesIdleL2(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.DemotionThreshold = 10 * time.Millisecond
	cfg.PromotionThreshold = 1
	c := cache.New[int, string](cfg)

	c.Insert(1, "one", 0, false)
	c.Get(1) // promotes L3 -> L2 given PromotionThreshold=1

	tier, ok := c.TierOf(1)
	require.True(t, ok)
	assert.Equal(t, cache.TierL2, tier)

	time.Sleep(20 * time.Millisecond)
	c.Maintain()

	tier, ok = c.TierOf(1)
	require.True(t, ok)
	assert.Equal(t, cache.TierL3, tier)
	assert.GreaterOrEqual(t, c.Stats().Demotions, uint64(1))
}

// TestMultiTierCacheConcurrentGetsDoNotRace drives many goroutines against
// the same L2/L3-resident key to exercise the hit-count-bump-and-promote
// path under contention. It doesn't assert an exact promotion count (only
// one goroutine can win the race to promote), just that every read is
// consistent and the cache ends up with the key in exactly one tier.
func TestMultiTierCacheConcurrentGetsDoNotRace(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.PromotionThreshold = 50
	c := cache.New[int, string](cfg)
	c.Insert(1, "one", 0, false)

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				v, ok := c.Get(1)
				assert.True(t, ok)
				assert.Equal(t, "one", v)
			}
		}()
	}
	wg.Wait()

	tiers := 0
	for _, tier := range []cache.Tier{cache.TierL1, cache.TierL2, cache.TierL3} {
		if got, ok := c.TierOf(1); ok && got == tier {
			tiers++
		}
	}
	assert.Equal(t, 1, tiers, "key must occupy exactly one tier after concurrent access")
}

// TestLRUTierConcurrentGetsDoNotRace exercises the same hit-count bump path
// directly against an LRUTier, which guards its entries with its own lock
// distinct from the wrapped lru.Cache's internal one.
func TestLRUTierConcurrentGetsDoNotRace(t *testing.T) {
	tier := cache.NewLRUTier[int, string](4)
	tier.Insert(1, "one", 0, false)

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v, ok := tier.Get(1)
				assert.True(t, ok)
				assert.Equal(t, "one", v)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(goroutines*50), tier.HitCount(1))
}
