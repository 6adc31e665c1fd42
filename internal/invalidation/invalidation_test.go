package invalidation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/circuitbreaker"
	"github.com/ocx/coordination/internal/invalidation"
)

type failingPubSub struct{}

func (failingPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	return errors.New("redis down")
}

func (failingPubSub) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	return func() {}, nil
}

func TestTagInvalidatorInvalidatesByTag(t *testing.T) {
	bus := invalidation.NewBus[int]()
	ti := invalidation.NewTagInvalidator[int, string](bus)

	ti.Insert(1, "value1", []string{"user:123"})
	ti.Insert(2, "value2", []string{"user:123"})
	ti.Insert(3, "value3", []string{"user:456"})

	count := ti.InvalidateTag("user:123")
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, ti.Len())

	_, ok := ti.Get(3)
	assert.True(t, ok)
}

func TestTagInvalidatorInvalidateTagsPlural(t *testing.T) {
	ti := invalidation.NewTagInvalidator[int, string](nil)
	ti.Insert(1, "v1", []string{"a"})
	ti.Insert(2, "v2", []string{"b"})
	ti.Insert(3, "v3", []string{"c"})

	count := ti.InvalidateTags([]string{"a", "b"})
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, ti.Len())
}

func TestPatternInvalidatorWildcard(t *testing.T) {
	keyFn := func(k string) string { return k }
	pi := invalidation.NewPatternInvalidator[string, string](keyFn, nil)

	pi.Insert("user:123:session", "v1")
	pi.Insert("user:123:profile", "v2")
	pi.Insert("user:456:session", "v3")

	count, err := pi.InvalidatePattern("user:123:*")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, pi.Len())
}

func TestPatternInvalidatorLiteralDotIsNotWildcard(t *testing.T) {
	keyFn := func(k string) string { return k }
	pi := invalidation.NewPatternInvalidator[string, string](keyFn, nil)

	pi.Insert("a.b", "v1")
	pi.Insert("aXb", "v2")

	count, err := pi.InvalidatePattern("a.b")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "literal '.' in the pattern must not match any character")
}

func TestCascadeInvalidatorCascadesToDependents(t *testing.T) {
	ci := invalidation.NewCascadeInvalidator[int, string](nil)

	ci.Insert(1, "value1", nil)
	ci.Insert(2, "value2", []int{1})
	ci.Insert(3, "value3", []int{2})

	assert.Equal(t, 3, ci.Len())

	count := ci.InvalidateCascade(1)
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, ci.Len())
}

func TestCascadeInvalidatorDependencyAccessors(t *testing.T) {
	ci := invalidation.NewCascadeInvalidator[int, string](nil)
	ci.Insert(1, "value1", nil)
	ci.Insert(2, "value2", []int{1})

	assert.Contains(t, ci.Dependencies(2), 1)
	assert.Contains(t, ci.Dependents(1), 2)
}

func TestCascadeInvalidatorDetectsCircularDependency(t *testing.T) {
	ci := invalidation.NewCascadeInvalidator[int, string](nil)
	ci.Insert(1, "value1", []int{2})
	ci.Insert(2, "value2", []int{3})
	ci.Insert(3, "value3", []int{1})

	assert.True(t, ci.HasCircularDependency(1))
}

func TestCascadeInvalidatorNoCircularDependencyOnDAG(t *testing.T) {
	ci := invalidation.NewCascadeInvalidator[int, string](nil)
	ci.Insert(1, "value1", nil)
	ci.Insert(2, "value2", []int{1})
	ci.Insert(3, "value3", []int{2})

	assert.False(t, ci.HasCircularDependency(3))
}

func TestBusPublishDeliversToSubscribers(t *testing.T) {
	bus := invalidation.NewBus[int]()
	received := make(chan invalidation.Event[int], 1)

	unsub := bus.Subscribe(func(e invalidation.Event[int]) {
		received <- e
	})
	defer unsub()

	bus.Publish(invalidation.Event[int]{Kind: invalidation.EventKindKey, Key: 42})

	select {
	case e := <-received:
		assert.Equal(t, 42, e.Key)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := invalidation.NewBus[int]()
	received := make(chan invalidation.Event[int], 1)

	unsub := bus.Subscribe(func(e invalidation.Event[int]) {
		received <- e
	})
	unsub()

	bus.Publish(invalidation.Event[int]{Kind: invalidation.EventKindKey, Key: 1})

	select {
	case <-received:
		t.Fatal("unsubscribed handler should not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBusDistributesAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb1.Close()
	rdb2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb2.Close()

	publisher := invalidation.NewRedisBus[string](invalidation.NewGoRedisPubSub(rdb1), "test:invalidation")
	subscriber := invalidation.NewRedisBus[string](invalidation.NewGoRedisPubSub(rdb2), "test:invalidation")
	defer publisher.Close()
	defer subscriber.Close()

	received := make(chan invalidation.Event[string], 1)
	unsub := subscriber.Subscribe(func(e invalidation.Event[string]) {
		received <- e
	})
	defer unsub()

	// Let the subscription register with miniredis before publishing.
	time.Sleep(20 * time.Millisecond)
	publisher.Publish(invalidation.Event[string]{Kind: invalidation.EventKindKey, Key: "widget"})

	select {
	case e := <-received:
		assert.Equal(t, "widget", e.Key)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered across redis bus instances")
	}
}

func TestRedisBusOpenCircuitFallsBackToLocalDelivery(t *testing.T) {
	cb := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c circuitbreaker.Counts) bool {
			return c.ConsecutiveFailures >= 1
		},
	})
	bus := invalidation.NewRedisBus[string](failingPubSub{}, "test:invalidation", invalidation.WithCircuitBreaker[string](cb))
	defer bus.Close()

	received := make(chan invalidation.Event[string], 2)
	unsub := bus.Subscribe(func(e invalidation.Event[string]) { received <- e })
	defer unsub()

	bus.Publish(invalidation.Event[string]{Kind: invalidation.EventKindKey, Key: "a"})
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	bus.Publish(invalidation.Event[string]{Kind: invalidation.EventKindKey, Key: "b"})

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("event was not delivered locally despite open circuit")
		}
	}
}
