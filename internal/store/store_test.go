package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/store"
)

type record struct {
	Name  string
	Price int
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemory[string, record]()

	_, ok, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "a", record{Name: "bolt", Price: 10}))
	v, ok, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "bolt", Price: 10}, v)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err = s.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStoreBatchLoad(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemory[string, record]()
	require.NoError(t, s.Save(ctx, "a", record{Name: "a"}))
	require.NoError(t, s.Save(ctx, "b", record{Name: "b"}))

	out, err := s.BatchLoad(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, record{Name: "a"}, out["a"])
}

func newMiniredisClient(t *testing.T) *store.GoRedisAdapter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewGoRedisAdapter(rdb)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newMiniredisClient(t)
	s := store.NewRedisStore[string, record](client, "test:", store.WithTTL[string, record](time.Minute))

	_, ok, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "widget", record{Name: "widget", Price: 5}))

	v, ok, err := s.Load(ctx, "widget")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "widget", Price: 5}, v)

	require.NoError(t, s.Delete(ctx, "widget"))
	_, ok, err = s.Load(ctx, "widget")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreBatchLoadPreservesPerKeyCorrectness(t *testing.T) {
	ctx := context.Background()
	client := newMiniredisClient(t)
	s := store.NewRedisStore[string, record](client, "test:")

	require.NoError(t, s.Save(ctx, "a", record{Name: "a"}))
	require.NoError(t, s.Save(ctx, "b", record{Name: "b"}))

	out, err := s.BatchLoad(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, record{Name: "a"}, out["a"])
	assert.Equal(t, record{Name: "b"}, out["b"])
	_, present := out["missing"]
	assert.False(t, present)
}
