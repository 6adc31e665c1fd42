package invalidation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/coordination/internal/circuitbreaker"
)

// PubSubClient is a minimal interface for Redis Pub/Sub, narrowed from
// go-redis the way RedisClient is narrowed in the store package.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisBus distributes invalidation events across processes via Redis
// Pub/Sub. Co-located subscribers receive events through the same Redis
// subscription as remote ones; only when the publish itself fails does
// Publish deliver the event to local subscribers directly. Grounded on the
// hub's RedisEventBus.
type RedisBus[K comparable] struct {
	mu         sync.RWMutex
	client     PubSubClient
	channel    string
	localSubs  []subscription[K]
	nextID     int
	unsubFuncs []func()
	closed     bool
	breaker    *circuitbreaker.CircuitBreaker
}

// RedisBusOption configures a RedisBus at construction time.
type RedisBusOption[K comparable] func(*RedisBus[K])

// WithCircuitBreaker guards Publish's remote call with cb, so a degraded
// Redis deployment fails fast into local-only delivery instead of blocking
// every Publish on a round trip that is likely to fail.
func WithCircuitBreaker[K comparable](cb *circuitbreaker.CircuitBreaker) RedisBusOption[K] {
	return func(b *RedisBus[K]) { b.breaker = cb }
}

func NewRedisBus[K comparable](client PubSubClient, channel string, opts ...RedisBusOption[K]) *RedisBus[K] {
	if channel == "" {
		channel = "coordination:invalidation"
	}
	b := &RedisBus[K]{client: client, channel: channel}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish marshals event to JSON and publishes it on the shared channel.
// On publish failure it logs and degrades to local-only delivery rather
// than returning an error, matching the original's resilience posture.
func (b *RedisBus[K]) Publish(event Event[K]) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("invalidation: marshal event failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	publish := func(ctx context.Context) (interface{}, error) {
		return nil, b.client.Publish(ctx, b.channel, data)
	}

	if b.breaker != nil {
		_, err = b.breaker.ExecuteContext(ctx, publish)
	} else {
		_, err = publish(ctx)
	}
	if err != nil {
		slog.Warn("invalidation: redis publish failed, falling back to local", "error", err)
		b.deliverLocal(event)
	}
}

func (b *RedisBus[K]) Subscribe(handler Handler[K]) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.localSubs = append(b.localSubs, subscription[K]{id: id, handler: handler})
	b.mu.Unlock()

	unsub, err := b.client.Subscribe(context.Background(), b.channel, func(data []byte) {
		var event Event[K]
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("invalidation: unmarshal event failed", "error", err)
			return
		}
		b.deliverLocal(event)
	})
	if err != nil {
		slog.Warn("invalidation: redis subscribe failed, local-only mode", "error", err)
	} else {
		b.mu.Lock()
		b.unsubFuncs = append(b.unsubFuncs, unsub)
		b.mu.Unlock()
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.localSubs {
			if sub.id == id {
				b.localSubs = append(b.localSubs[:i], b.localSubs[i+1:]...)
				return
			}
		}
	}
}

func (b *RedisBus[K]) deliverLocal(event Event[K]) {
	b.mu.RLock()
	subs := make([]subscription[K], len(b.localSubs))
	copy(subs, b.localSubs)
	b.mu.RUnlock()

	for _, sub := range subs {
		h := sub.handler
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("invalidation: subscriber panic recovered", "panic", r)
				}
			}()
			h(event)
		}()
	}
}

func (b *RedisBus[K]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, unsub := range b.unsubFuncs {
		unsub()
	}
	b.unsubFuncs = nil
	b.localSubs = nil
	return nil
}
