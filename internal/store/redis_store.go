package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ocx/coordination/internal/circuitbreaker"
	"github.com/ocx/coordination/internal/coreerrors"
)

// RedisClient is a minimal interface any Redis library can satisfy, so this
// package never imports a specific driver directly; the caller wires a
// concrete client (go-redis in production, miniredis in tests).
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
}

// ErrRedisMiss is returned internally by a RedisClient.Get implementation
// when the key does not exist; RedisStore translates it to a (zero, false,
// nil) Load result rather than propagating it as an error.
var ErrRedisMiss = errors.New("redis: key not found")

// RedisStore is a BackingStore backed by Redis, keyed with a configurable
// prefix and values marshaled as JSON. Values are serialized directly
// rather than through the codec package, since callers that want
// compression/checksumming compose a Codec into the value type themselves.
type RedisStore[K comparable, V any] struct {
	client    RedisClient
	keyPrefix string
	ttl       time.Duration
	keyFunc   func(K) string

	retry   backoff.BackOff
	breaker *circuitbreaker.CircuitBreaker
}

// RedisStoreOption configures a RedisStore at construction time.
type RedisStoreOption[K comparable, V any] func(*RedisStore[K, V])

// WithTTL sets the TTL Redis applies to every Save. Zero means no
// expiration.
func WithTTL[K comparable, V any](ttl time.Duration) RedisStoreOption[K, V] {
	return func(s *RedisStore[K, V]) { s.ttl = ttl }
}

// WithKeyFunc overrides the default fmt.Sprint-based key derivation.
func WithKeyFunc[K comparable, V any](f func(K) string) RedisStoreOption[K, V] {
	return func(s *RedisStore[K, V]) { s.keyFunc = f }
}

// WithCircuitBreaker replaces the default breaker, e.g. to share one
// breaker across several stores pointed at the same Redis deployment.
func WithCircuitBreaker[K comparable, V any](cb *circuitbreaker.CircuitBreaker) RedisStoreOption[K, V] {
	return func(s *RedisStore[K, V]) { s.breaker = cb }
}

// NewRedisStore constructs a RedisStore. Backend calls are wrapped in a
// circuit breaker (tripping on a sustained failure ratio) and a bounded
// exponential backoff with jitter, matching the original implementation's
// documented AuditLogger retry pattern, so transient Redis blips don't
// surface as hard failures to strategy adapters and a down Redis fails
// fast instead of exhausting every caller's retry budget.
func NewRedisStore[K comparable, V any](client RedisClient, keyPrefix string, opts ...RedisStoreOption[K, V]) *RedisStore[K, V] {
	if keyPrefix == "" {
		keyPrefix = "ocx:cache:"
	}
	s := &RedisStore[K, V]{
		client:    client,
		keyPrefix: keyPrefix,
		keyFunc:   func(k K) string { return fmt.Sprint(k) },
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig("redis-store:" + keyPrefix)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return s
}

func (s *RedisStore[K, V]) redisKey(k K) string {
	return s.keyPrefix + s.keyFunc(k)
}

func (s *RedisStore[K, V]) withRetry(ctx context.Context, op func() error) error {
	guarded := func() error {
		_, err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, op()
		})
		return err
	}
	b := backoff.WithContext(s.retry, ctx)
	return backoff.Retry(guarded, b)
}

func (s *RedisStore[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var zero V
	var raw []byte
	missed := false
	err := s.withRetry(ctx, func() error {
		var opErr error
		raw, opErr = s.client.Get(ctx, s.redisKey(key))
		if errors.Is(opErr, ErrRedisMiss) {
			missed = true
			return nil
		}
		return opErr
	})
	if missed && err == nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, wrapBackendErr("load", err)
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, fmt.Errorf("store: load: decode %q: %w", s.redisKey(key), coreerrors.ErrCorrupt)
	}
	return value, true, nil
}

func (s *RedisStore[K, V]) Save(ctx context.Context, key K, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: save: encode: %w", err)
	}
	err = s.withRetry(ctx, func() error {
		return s.client.Set(ctx, s.redisKey(key), data, s.ttl)
	})
	if err != nil {
		return wrapBackendErr("save", err)
	}
	return nil
}

func (s *RedisStore[K, V]) Delete(ctx context.Context, key K) error {
	err := s.withRetry(ctx, func() error {
		return s.client.Del(ctx, s.redisKey(key))
	})
	if err != nil {
		return wrapBackendErr("delete", err)
	}
	return nil
}

// BatchLoad issues one MGET for all keys, preserving per-key correctness:
// keys that miss or fail to decode are simply absent from the result map
// rather than aborting the whole batch.
func (s *RedisStore[K, V]) BatchLoad(ctx context.Context, keys []K) (map[K]V, error) {
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.redisKey(k)
	}

	var raws [][]byte
	err := s.withRetry(ctx, func() error {
		var opErr error
		raws, opErr = s.client.MGet(ctx, redisKeys...)
		return opErr
	})
	if err != nil {
		return nil, wrapBackendErr("batch_load", err)
	}

	out := make(map[K]V, len(keys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		var value V
		if err := json.Unmarshal(raw, &value); err != nil {
			slog.Warn("store: batch_load: skipping undecodable value", "key", redisKeys[i], "error", err)
			continue
		}
		out[keys[i]] = value
	}
	return out, nil
}
