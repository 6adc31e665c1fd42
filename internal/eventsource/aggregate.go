package eventsource

import (
	"context"

	"github.com/google/uuid"
)

// DomainEvent is an event an aggregate produces and applies to itself.
type DomainEvent interface {
	EventType() string
}

// AggregateRoot is anything reconstructable by replaying a sequence of its
// own events.
type AggregateRoot[E DomainEvent] interface {
	AggregateID() string
	Version() uint64
	ApplyEvent(event E)
}

// EventCodec serializes and deserializes one aggregate's event type,
// standing in for the original's DomainEvent::to_bytes/from_bytes pair.
type EventCodec[E DomainEvent] interface {
	Encode(event E) ([]byte, error)
	Decode(data []byte) (E, error)
}

// AggregateRepository loads and saves aggregates of type A by replaying
// and appending to their event stream.
type AggregateRepository[A AggregateRoot[E], E DomainEvent] struct {
	store    EventStore
	codec    EventCodec[E]
	aggType  string
	newBlank func() A
}

func NewAggregateRepository[A AggregateRoot[E], E DomainEvent](store EventStore, codec EventCodec[E], aggregateType string, newBlank func() A) *AggregateRepository[A, E] {
	return &AggregateRepository[A, E]{store: store, codec: codec, aggType: aggregateType, newBlank: newBlank}
}

// Load replays every event in the aggregate's stream.
func (r *AggregateRepository[A, E]) Load(ctx context.Context, aggregateID string) (A, bool, error) {
	slice, err := r.store.ReadStreamAll(ctx, aggregateID)
	var zero A
	if err != nil {
		return zero, false, err
	}
	if len(slice.Events) == 0 {
		return zero, false, nil
	}

	agg := r.newBlank()
	for _, se := range slice.Events {
		event, err := r.codec.Decode(se.Data)
		if err != nil {
			return zero, false, err
		}
		agg.ApplyEvent(event)
	}
	return agg, true, nil
}

// LoadAtVersion replays events up to and including version.
func (r *AggregateRepository[A, E]) LoadAtVersion(ctx context.Context, aggregateID string, version uint64) (A, bool, error) {
	slice, err := r.store.ReadStream(ctx, aggregateID, 1, int(version))
	var zero A
	if err != nil {
		return zero, false, err
	}
	if len(slice.Events) == 0 {
		return zero, false, nil
	}

	agg := r.newBlank()
	for _, se := range slice.Events {
		if se.Metadata.Version > version {
			break
		}
		event, err := r.codec.Decode(se.Data)
		if err != nil {
			return zero, false, err
		}
		agg.ApplyEvent(event)
	}
	return agg, true, nil
}

// Save appends events with optimistic concurrency against expectedVersion
// — the aggregate's version BEFORE these events were applied to it, not
// its current (post-apply) version. See AggregateBuilder.Save for why that
// distinction matters.
func (r *AggregateRepository[A, E]) Save(ctx context.Context, aggregate A, events []E, expectedVersion uint64, correlationID, causationID uuid.UUID) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	aggregateID := aggregate.AggregateID()
	data := make([]EventData, 0, len(events))
	for _, event := range events {
		encoded, err := r.codec.Encode(event)
		if err != nil {
			return nil, err
		}
		data = append(data, EventData{
			StreamID:        aggregateID,
			EventType:       event.EventType(),
			Data:            encoded,
			ExpectedVersion: int64(expectedVersion),
			CorrelationID:   correlationID,
			CausationID:     causationID,
		})
	}
	return r.store.AppendEvents(ctx, data)
}

func (r *AggregateRepository[A, E]) Exists(ctx context.Context, aggregateID string) (bool, error) {
	return r.store.StreamExists(ctx, aggregateID)
}

func (r *AggregateRepository[A, E]) GetVersion(ctx context.Context, aggregateID string) (uint64, error) {
	return r.store.GetStreamVersion(ctx, aggregateID)
}

// AggregateBuilder gives callers a fluent way to apply a sequence of
// events to an aggregate and then persist exactly those events.
//
// Fix carried over from the original source: the Rust AggregateBuilder
// read the expected version from the aggregate's version() field lazily,
// inside Save — but by then Apply had already mutated it (ApplyEvent
// increments version as part of applying), so the optimistic-concurrency
// check compared the store against the aggregate's POST-apply version
// instead of its pre-apply one. Here startVersion is captured once, at
// construction, before any Apply call can touch it.
type AggregateBuilder[A AggregateRoot[E], E DomainEvent] struct {
	aggregate    A
	startVersion uint64
	uncommitted  []E
}

func NewAggregateBuilder[A AggregateRoot[E], E DomainEvent](blank A) *AggregateBuilder[A, E] {
	return &AggregateBuilder[A, E]{aggregate: blank, startVersion: blank.Version()}
}

func FromAggregate[A AggregateRoot[E], E DomainEvent](aggregate A) *AggregateBuilder[A, E] {
	return &AggregateBuilder[A, E]{aggregate: aggregate, startVersion: aggregate.Version()}
}

func (b *AggregateBuilder[A, E]) Apply(event E) *AggregateBuilder[A, E] {
	b.aggregate.ApplyEvent(event)
	b.uncommitted = append(b.uncommitted, event)
	return b
}

func (b *AggregateBuilder[A, E]) ApplyMany(events []E) *AggregateBuilder[A, E] {
	for _, event := range events {
		b.Apply(event)
	}
	return b
}

func (b *AggregateBuilder[A, E]) Aggregate() A {
	return b.aggregate
}

func (b *AggregateBuilder[A, E]) UncommittedEvents() []E {
	return b.uncommitted
}

func (b *AggregateBuilder[A, E]) Build() (A, []E) {
	return b.aggregate, b.uncommitted
}

// Save persists the builder's uncommitted events against the version the
// aggregate had before any Apply call in this builder — the fix described
// in the type's doc comment.
func (b *AggregateBuilder[A, E]) Save(ctx context.Context, repo *AggregateRepository[A, E], correlationID, causationID uuid.UUID) ([]StoredEvent, error) {
	return repo.Save(ctx, b.aggregate, b.uncommitted, b.startVersion, correlationID, causationID)
}
