// Package eventsource implements the event-sourcing components (C9-C12):
// an append-only EventStore with optimistic concurrency, an
// AggregateRepository/AggregateBuilder pair for replay-based state
// reconstruction, a catch-up-then-live ProjectionManager, and a
// SagaCoordinator with reverse-order compensation. Grounded on the
// original eventsource module (store usage inferred from aggregate.rs,
// projection.rs and saga.rs, since store.rs itself was not retrieved).
package eventsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/coordination/internal/coreerrors"
	"github.com/ocx/coordination/internal/metrics"
)

// EventData is one event awaiting append to a stream.
type EventData struct {
	StreamID        string
	EventType       string
	Data            []byte
	ExpectedVersion int64 // the stream's version before this append; -1 skips the check
	CorrelationID   uuid.UUID
	CausationID     uuid.UUID
	Metadata        map[string]string
}

// EventMetadata carries positional and causal information alongside a
// stored event's payload.
type EventMetadata struct {
	Sequence      uint64 // global, monotonic across every stream
	Version       uint64 // position within StreamID, 1-based
	Timestamp     time.Time
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	Extra         map[string]string
}

// StoredEvent is an event as durably recorded by the store.
type StoredEvent struct {
	StreamID  string
	EventType string
	Data      []byte
	Metadata  EventMetadata
}

// StreamSlice is a contiguous, paginated read of one stream. NextVersion is
// meaningful only when EndOfStream is false: it's the fromVersion a caller
// should pass to continue reading where this slice left off.
type StreamSlice struct {
	Events      []StoredEvent
	NextVersion uint64
	EndOfStream bool
}

// EventStore is the append-only log every aggregate, projection, and saga
// reads and writes through.
type EventStore interface {
	// AppendEvents appends events to their respective streams atomically
	// per stream, enforcing optimistic concurrency via ExpectedVersion.
	// All events in one call are expected to target the same stream (the
	// aggregate-save path only ever submits one), and a mismatch between
	// the call's ExpectedVersion and the stream's actual current version
	// fails the whole call with coreerrors.ErrVersionConflict.
	AppendEvents(ctx context.Context, events []EventData) ([]StoredEvent, error)

	// ReadStream reads up to count events from streamID starting at
	// fromVersion (1-based, inclusive). The returned slice's NextVersion
	// and EndOfStream fields let a caller page through a stream without
	// re-reading it from the start.
	ReadStream(ctx context.Context, streamID string, fromVersion, count int) (StreamSlice, error)

	// ReadStreamAll reads every event in a stream from version 1.
	ReadStreamAll(ctx context.Context, streamID string) (StreamSlice, error)

	// ReadAll reads up to limit events across all streams starting at
	// global sequence fromSequence, in sequence order. Used by
	// projections to catch up and tail the log.
	ReadAll(ctx context.Context, fromSequence uint64, limit int) ([]StoredEvent, error)

	StreamExists(ctx context.Context, streamID string) (bool, error)
	GetStreamVersion(ctx context.Context, streamID string) (uint64, error)
}

// InMemoryEventStore is an EventStore backed by per-stream slices guarded
// by one mutex, with a single atomic-like global sequence counter shared
// across all streams.
type InMemoryEventStore struct {
	mu       sync.RWMutex
	streams  map[string][]StoredEvent
	allOrder []StoredEvent // every event, in global sequence order
	nextSeq  uint64

	metrics *metrics.EventStoreMetrics
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{streams: make(map[string][]StoredEvent)}
}

// WithMetrics reports every AppendEvents call to m. Optional: tests and
// other callers that didn't construct a metrics.Registry can leave it unset.
func (s *InMemoryEventStore) WithMetrics(m *metrics.EventStoreMetrics) *InMemoryEventStore {
	s.metrics = m
	return s
}

func (s *InMemoryEventStore) AppendEvents(ctx context.Context, events []EventData) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	streamID := events[0].StreamID
	current := uint64(len(s.streams[streamID]))

	expected := events[0].ExpectedVersion
	if expected >= 0 && uint64(expected) != current {
		if s.metrics != nil {
			s.metrics.RecordAppend("version_conflict", 0)
		}
		return nil, fmt.Errorf("eventsource: append to %q at version %d (have %d): %w", streamID, expected, current, coreerrors.ErrVersionConflict)
	}

	stored := make([]StoredEvent, 0, len(events))
	now := time.Now()
	for _, e := range events {
		s.nextSeq++
		current++
		se := StoredEvent{
			StreamID:  e.StreamID,
			EventType: e.EventType,
			Data:      e.Data,
			Metadata: EventMetadata{
				Sequence:      s.nextSeq,
				Version:       current,
				Timestamp:     now,
				CorrelationID: e.CorrelationID,
				CausationID:   e.CausationID,
				Extra:         e.Metadata,
			},
		}
		s.streams[streamID] = append(s.streams[streamID], se)
		s.allOrder = append(s.allOrder, se)
		stored = append(stored, se)
	}
	if s.metrics != nil {
		s.metrics.RecordAppend("ok", len(stored))
	}
	return stored, nil
}

func (s *InMemoryEventStore) ReadStream(ctx context.Context, streamID string, fromVersion, count int) (StreamSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromVersion < 1 {
		fromVersion = 1
	}

	events := s.streams[streamID]
	var out []StoredEvent
	for _, e := range events {
		if int(e.Metadata.Version) < fromVersion {
			continue
		}
		if count > 0 && len(out) >= count {
			break
		}
		out = append(out, e)
	}

	if len(out) == 0 {
		return StreamSlice{EndOfStream: true}, nil
	}

	last := out[len(out)-1]
	if int(last.Metadata.Version) >= len(events) {
		return StreamSlice{Events: out, EndOfStream: true}, nil
	}
	return StreamSlice{Events: out, NextVersion: last.Metadata.Version + 1}, nil
}

func (s *InMemoryEventStore) ReadStreamAll(ctx context.Context, streamID string) (StreamSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.streams[streamID]
	out := make([]StoredEvent, len(events))
	copy(out, events)
	return StreamSlice{Events: out, EndOfStream: true}, nil
}

func (s *InMemoryEventStore) ReadAll(ctx context.Context, fromSequence uint64, limit int) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoredEvent
	for _, e := range s.allOrder {
		if e.Metadata.Sequence < fromSequence {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryEventStore) StreamExists(ctx context.Context, streamID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[streamID]
	return ok, nil
}

func (s *InMemoryEventStore) GetStreamVersion(ctx context.Context, streamID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.streams[streamID])), nil
}
