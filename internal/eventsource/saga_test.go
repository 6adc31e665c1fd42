package eventsource_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/eventsource"
	"github.com/ocx/coordination/internal/metrics"
)

func gaugeVecValue(t *testing.T, g *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.WithLabelValues(labels...).Write(&m))
	return m.GetGauge().GetValue()
}

func counterValueSaga(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type recordingSaga struct {
	sagaType    string
	steps       []string
	failStep    int // -1 means never fail
	mu          sync.Mutex
	executed    []int
	compensated []int
	timedOut    bool
}

func (s *recordingSaga) SagaType() string  { return s.sagaType }
func (s *recordingSaga) Steps() []string   { return s.steps }
func (s *recordingSaga) ExecuteStep(ctx context.Context, stepIndex int, instance *eventsource.SagaInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stepIndex == s.failStep {
		return fmt.Errorf("step %d failed", stepIndex)
	}
	s.executed = append(s.executed, stepIndex)
	return nil
}
func (s *recordingSaga) CompensateStep(ctx context.Context, stepIndex int, instance *eventsource.SagaInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensated = append(s.compensated, stepIndex)
	return nil
}
func (s *recordingSaga) OnTimeout(ctx context.Context, instance *eventsource.SagaInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timedOut = true
}

func (s *recordingSaga) snapshot() (executed, compensated []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.executed...), append([]int(nil), s.compensated...)
}

func TestSagaCoordinatorCompletesAllStepsOnSuccess(t *testing.T) {
	store := eventsource.NewInMemorySagaStore()
	coord := eventsource.NewSagaCoordinator(store)
	saga := &recordingSaga{sagaType: "order", steps: []string{"reserve", "charge", "ship"}, failStep: -1}
	coord.Register(saga)

	ctx := context.Background()
	require.NoError(t, coord.StartSaga(ctx, "saga-1", "order", time.Minute, uuid.New()))

	require.Eventually(t, func() bool {
		inst, ok, err := coord.GetStatus(ctx, "saga-1")
		return err == nil && ok && inst.Status == eventsource.SagaStatusCompleted
	}, time.Second, 10*time.Millisecond)

	executed, compensated := saga.snapshot()
	assert.Equal(t, []int{0, 1, 2}, executed)
	assert.Empty(t, compensated)
}

func TestSagaCoordinatorCompensatesInReverseOrderOnFailure(t *testing.T) {
	store := eventsource.NewInMemorySagaStore()
	coord := eventsource.NewSagaCoordinator(store)
	// Fails on step 2 ("ship"); steps 0 and 1 already executed must be
	// compensated in reverse: 1 then 0.
	saga := &recordingSaga{sagaType: "order", steps: []string{"reserve", "charge", "ship"}, failStep: 2}
	coord.Register(saga)

	ctx := context.Background()
	require.NoError(t, coord.StartSaga(ctx, "saga-2", "order", time.Minute, uuid.New()))

	require.Eventually(t, func() bool {
		inst, ok, err := coord.GetStatus(ctx, "saga-2")
		return err == nil && ok && inst.Status == eventsource.SagaStatusCompensated
	}, time.Second, 10*time.Millisecond)

	executed, compensated := saga.snapshot()
	assert.Equal(t, []int{0, 1}, executed)
	assert.Equal(t, []int{1, 0}, compensated)
}

func TestSagaCoordinatorUnknownTypeReturnsError(t *testing.T) {
	store := eventsource.NewInMemorySagaStore()
	coord := eventsource.NewSagaCoordinator(store)

	err := coord.StartSaga(context.Background(), "saga-x", "missing", time.Minute, uuid.New())
	assert.Error(t, err)
}

func TestSagaInstanceTimeoutDetection(t *testing.T) {
	inst := eventsource.NewSagaInstance("s", "t", []string{"a"})
	inst.Timeout = time.Millisecond
	time.Sleep(5 * time.Millisecond)
	assert.True(t, inst.IsTimedOut())

	inst2 := eventsource.NewSagaInstance("s2", "t", []string{"a"})
	inst2.Timeout = time.Hour
	assert.False(t, inst2.IsTimedOut())
}

func TestSagaCoordinatorTimeoutMonitorFailsRunningSagas(t *testing.T) {
	store := eventsource.NewInMemorySagaStore()
	inst := eventsource.NewSagaInstance("saga-timeout", "order", []string{"reserve"})
	inst.Timeout = time.Millisecond
	inst.StartedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(context.Background(), inst))

	coord := eventsource.NewSagaCoordinator(store).WithTimeoutCheckInterval(10 * time.Millisecond)
	coord.StartTimeoutMonitor()
	defer coord.StopTimeoutMonitor()

	require.Eventually(t, func() bool {
		loaded, ok, err := store.Load(context.Background(), "saga-timeout")
		return err == nil && ok && loaded.Status == eventsource.SagaStatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestSagaCoordinatorWithMetricsRecordsStatusAndCompensation(t *testing.T) {
	reg := prometheus.NewRegistry()
	esMetrics := metrics.NewEventStoreMetrics(reg)

	store := eventsource.NewInMemorySagaStore()
	coord := eventsource.NewSagaCoordinator(store).WithMetrics(esMetrics)
	saga := &recordingSaga{sagaType: "order", steps: []string{"reserve", "charge", "ship"}, failStep: 2}
	coord.Register(saga)

	ctx := context.Background()
	require.NoError(t, coord.StartSaga(ctx, "saga-metrics", "order", time.Minute, uuid.New()))

	require.Eventually(t, func() bool {
		inst, ok, err := coord.GetStatus(ctx, "saga-metrics")
		return err == nil && ok && inst.Status == eventsource.SagaStatusCompensated
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(1), gaugeVecValue(t, esMetrics.SagaStatus, "order", string(eventsource.SagaStatusCompensated)))
	assert.Equal(t, float64(1), counterValueSaga(t, esMetrics.SagaCompensations))
}

func TestInMemorySagaStoreListActiveFiltersByStatus(t *testing.T) {
	store := eventsource.NewInMemorySagaStore()
	ctx := context.Background()

	running := eventsource.NewSagaInstance("running", "t", []string{"a"})
	completed := eventsource.NewSagaInstance("done", "t", []string{"a"})
	completed.Complete()

	require.NoError(t, store.Save(ctx, running))
	require.NoError(t, store.Save(ctx, completed))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "running", active[0].SagaID)
}
