package eventsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/coordination/internal/metrics"
)

const (
	defaultProjectionCatchUpBatchSize = 100
	defaultProjectionLiveBatchSize    = 10
	defaultProjectionLivePollInterval = 100 * time.Millisecond
)

// Checkpoint records how far a projection has processed the global event
// log.
type Checkpoint struct {
	ProjectionName string
	LastSequence   uint64
	Timestamp      time.Time
	Metadata       map[string]string
}

func NewCheckpoint(name string) Checkpoint {
	return Checkpoint{ProjectionName: name, Timestamp: time.Now(), Metadata: make(map[string]string)}
}

func (c *Checkpoint) Update(sequence uint64) {
	c.LastSequence = sequence
	c.Timestamp = time.Now()
}

// CheckpointStore persists projection checkpoints.
type CheckpointStore interface {
	Load(ctx context.Context, projectionName string) (Checkpoint, bool, error)
	Save(ctx context.Context, checkpoint Checkpoint) error
	Reset(ctx context.Context, projectionName string) error
}

// InMemoryCheckpointStore is a CheckpointStore for tests and single-node
// deployments.
type InMemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{checkpoints: make(map[string]Checkpoint)}
}

func (s *InMemoryCheckpointStore) Load(ctx context.Context, projectionName string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[projectionName]
	return cp, ok, nil
}

func (s *InMemoryCheckpointStore) Save(ctx context.Context, checkpoint Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.ProjectionName] = checkpoint
	return nil
}

func (s *InMemoryCheckpointStore) Reset(ctx context.Context, projectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, projectionName)
	return nil
}

// Policy is a host's instruction to ProjectionManager after a live-tail
// handler error: skip the event and keep going, or stall the projection
// until the next tick retries it.
type Policy int

const (
	PolicySkip Policy = iota
	PolicyStall
)

// ProjectionStats tracks a projection's processing health.
type ProjectionStats struct {
	EventsProcessed     uint64
	Errors              uint64
	LastProcessingTime  time.Duration
	AvgProcessingTimeNs float64
}

// Projection consumes the event log to build a read model.
type Projection interface {
	Name() string
	Handle(ctx context.Context, event StoredEvent) error
	Reset(ctx context.Context) error
	Stats() ProjectionStats
}

// ProjectionManager runs each registered projection through a catch-up
// pass over the historical log, then tails new events live. A handler
// error during the live tail is logged and skipped by default — one
// broken event must not wedge every later event behind it — but a host
// can override that policy via OnHandlerError.
type ProjectionManager struct {
	eventStore      EventStore
	checkpointStore CheckpointStore

	catchUpBatchSize int
	liveBatchSize    int
	livePollInterval time.Duration

	metrics *metrics.EventStoreMetrics

	mu          sync.RWMutex
	projections map[string]Projection

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// OnHandlerError is invoked whenever a live-subscription Handle call
	// fails, after the failure has already been logged. Its return value
	// decides what happens next: PolicySkip (the default when unset) moves
	// on to the next event, PolicyStall stops this tick's batch for the
	// projection without advancing its checkpoint past the failing event,
	// so the next tick retries it.
	OnHandlerError func(projectionName string, event StoredEvent, err error) Policy
}

func NewProjectionManager(eventStore EventStore, checkpointStore CheckpointStore) *ProjectionManager {
	return &ProjectionManager{
		eventStore:       eventStore,
		checkpointStore:  checkpointStore,
		projections:      make(map[string]Projection),
		catchUpBatchSize: defaultProjectionCatchUpBatchSize,
		liveBatchSize:    defaultProjectionLiveBatchSize,
		livePollInterval: defaultProjectionLivePollInterval,
	}
}

// WithCatchUpBatchSize overrides how many events Start's catch-up pass reads
// per ReadAll call. n <= 0 is ignored.
func (m *ProjectionManager) WithCatchUpBatchSize(n int) *ProjectionManager {
	if n > 0 {
		m.catchUpBatchSize = n
	}
	return m
}

// WithLiveBatchSize overrides how many events each live-tail tick reads per
// projection. n <= 0 is ignored.
func (m *ProjectionManager) WithLiveBatchSize(n int) *ProjectionManager {
	if n > 0 {
		m.liveBatchSize = n
	}
	return m
}

// WithLivePollInterval overrides the live-tail ticker period. d <= 0 is
// ignored. Intended for tests; production callers can leave the default.
func (m *ProjectionManager) WithLivePollInterval(d time.Duration) *ProjectionManager {
	if d > 0 {
		m.livePollInterval = d
	}
	return m
}

// WithMetrics reports per-projection skipped-event counts and an
// approximate catch-up lag to mt. Optional.
func (m *ProjectionManager) WithMetrics(mt *metrics.EventStoreMetrics) *ProjectionManager {
	m.metrics = mt
	return m
}

func (m *ProjectionManager) Register(p Projection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projections[p.Name()] = p
}

// Start runs catch-up for every registered projection, then begins the
// live subscription loop.
func (m *ProjectionManager) Start(ctx context.Context) error {
	m.mu.RLock()
	projections := make([]Projection, 0, len(m.projections))
	for _, p := range m.projections {
		projections = append(projections, p)
	}
	m.mu.RUnlock()

	for _, p := range projections {
		if err := m.catchUpProjection(ctx, p); err != nil {
			return err
		}
	}

	m.startLiveSubscription()
	return nil
}

func (m *ProjectionManager) Stop() {
	if m.running.CompareAndSwap(true, false) {
		close(m.stop)
		m.wg.Wait()
	}
}

func (m *ProjectionManager) catchUpProjection(ctx context.Context, p Projection) error {
	cp, ok, err := m.checkpointStore.Load(ctx, p.Name())
	if err != nil {
		return err
	}
	if !ok {
		cp = NewCheckpoint(p.Name())
	}

	for {
		events, err := m.eventStore.ReadAll(ctx, cp.LastSequence+1, m.catchUpBatchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			break
		}

		for _, e := range events {
			if err := p.Handle(ctx, e); err != nil {
				return err
			}
			cp.Update(e.Metadata.Sequence)
		}
		if err := m.checkpointStore.Save(ctx, cp); err != nil {
			return err
		}
		if len(events) < m.catchUpBatchSize {
			break
		}
	}
	return nil
}

func (m *ProjectionManager) startLiveSubscription() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.livePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				if !m.running.Load() {
					return
				}
				m.tickAllProjections()
			}
		}
	}()
}

func (m *ProjectionManager) tickAllProjections() {
	ctx := context.Background()

	m.mu.RLock()
	projections := make([]Projection, 0, len(m.projections))
	for _, p := range m.projections {
		projections = append(projections, p)
	}
	m.mu.RUnlock()

	for _, p := range projections {
		cp, ok, err := m.checkpointStore.Load(ctx, p.Name())
		if err != nil {
			slog.Warn("eventsource: projection checkpoint load failed", "projection", p.Name(), "error", err)
			continue
		}
		if !ok {
			cp = NewCheckpoint(p.Name())
		}

		events, err := m.eventStore.ReadAll(ctx, cp.LastSequence+1, m.liveBatchSize)
		if err != nil {
			slog.Warn("eventsource: projection read failed", "projection", p.Name(), "error", err)
			continue
		}

		for _, e := range events {
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("eventsource: projection handler panic: %v", r)
					}
				}()
				return p.Handle(ctx, e)
			}()
			if err != nil {
				slog.Warn("eventsource: projection handler error", "projection", p.Name(), "sequence", e.Metadata.Sequence, "error", err)
				if m.metrics != nil {
					m.metrics.ProjectionSkipped.WithLabelValues(p.Name()).Inc()
				}
				policy := PolicySkip
				if m.OnHandlerError != nil {
					policy = m.OnHandlerError(p.Name(), e, err)
				}
				if policy == PolicyStall {
					slog.Warn("eventsource: projection stalled on handler error", "projection", p.Name(), "sequence", e.Metadata.Sequence)
					break
				}
				cp.Update(e.Metadata.Sequence)
				continue
			}
			cp.Update(e.Metadata.Sequence)
		}
		if m.metrics != nil {
			// ReadAll doesn't expose the store's current global sequence, so a
			// full batch is the only signal available that more events are
			// waiting beyond this tick; treat that as the lag estimate.
			lag := 0
			if len(events) >= m.liveBatchSize {
				lag = len(events)
			}
			m.metrics.ProjectionLag.WithLabelValues(p.Name()).Set(float64(lag))
		}
		if len(events) > 0 {
			if err := m.checkpointStore.Save(ctx, cp); err != nil {
				slog.Warn("eventsource: projection checkpoint save failed", "projection", p.Name(), "error", err)
			}
		}
	}
}

func (m *ProjectionManager) ResetProjection(ctx context.Context, name string) error {
	m.mu.RLock()
	p, ok := m.projections[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := p.Reset(ctx); err != nil {
		return err
	}
	return m.checkpointStore.Reset(ctx, name)
}

func (m *ProjectionManager) RebuildProjection(ctx context.Context, name string) error {
	if err := m.ResetProjection(ctx, name); err != nil {
		return err
	}
	m.mu.RLock()
	p, ok := m.projections[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return m.catchUpProjection(ctx, p)
}

func (m *ProjectionManager) GetStats(name string) (ProjectionStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projections[name]
	if !ok {
		return ProjectionStats{}, false
	}
	return p.Stats(), true
}
