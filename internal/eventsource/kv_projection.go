package eventsource

import (
	"context"
	"sync"
	"sync/atomic"
)

// KeyValueProjection is a generic read model: a handler extracts a (key,
// value) pair from each event, or reports false to skip it, and the projection keeps
// the latest value per key.
type KeyValueProjection[K comparable, V any] struct {
	name    string
	handler func(event StoredEvent) (K, V, bool)

	mu   sync.RWMutex
	data map[K]V

	processed atomic.Uint64
	errors    atomic.Uint64
}

func NewKeyValueProjection[K comparable, V any](name string, handler func(event StoredEvent) (K, V, bool)) *KeyValueProjection[K, V] {
	return &KeyValueProjection[K, V]{
		name:    name,
		handler: handler,
		data:    make(map[K]V),
	}
}

func (p *KeyValueProjection[K, V]) Name() string { return p.name }

func (p *KeyValueProjection[K, V]) Handle(ctx context.Context, event StoredEvent) error {
	key, value, ok := p.handler(event)
	p.processed.Add(1)
	if !ok {
		return nil
	}
	p.mu.Lock()
	p.data[key] = value
	p.mu.Unlock()
	return nil
}

func (p *KeyValueProjection[K, V]) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.data = make(map[K]V)
	p.mu.Unlock()
	p.processed.Store(0)
	p.errors.Store(0)
	return nil
}

func (p *KeyValueProjection[K, V]) Stats() ProjectionStats {
	return ProjectionStats{EventsProcessed: p.processed.Load(), Errors: p.errors.Load(), LastProcessingTime: 0}
}

func (p *KeyValueProjection[K, V]) Get(key K) (V, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	return v, ok
}

func (p *KeyValueProjection[K, V]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}
