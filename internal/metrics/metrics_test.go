package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/metrics"
)

func TestCacheMetricsRecordHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCacheMetrics(reg)

	m.RecordHit("l1")
	m.RecordHit("l1")
	m.RecordMiss()
	m.RecordStats(2.0 / 3.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestLockMetricsRecordAcquire(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLockMetrics(reg)

	m.RecordAcquire("write", "acquired", 5*time.Millisecond)
	m.RecordAcquire("read", "timeout", 30*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEventStoreMetricsRecordAppendAndSagaStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewEventStoreMetrics(reg)

	m.RecordAppend("ok", 3)
	m.RecordAppend("version_conflict", 0)
	m.RecordSagaStatus("order-fulfillment", "running", 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewRegistryRegistersAllSets(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRegistry(reg)
	require.NotNil(t, r.Cache)
	require.NotNil(t, r.Lock)
	require.NotNil(t, r.EventStore)
}

func TestServerHealthzReportsOkWhenAllChecksPass(t *testing.T) {
	s := metrics.NewServer(":0", nil)
	s.RegisterHealthCheck("redis", func(ctx context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServerHealthzReportsDegradedOnFailingCheck(t *testing.T) {
	s := metrics.NewServer(":0", nil)
	s.RegisterHealthCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestServerMetricsEndpointServesPrometheusText(t *testing.T) {
	s := metrics.NewServer(":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerRunShutsDownOnContextCancel(t *testing.T) {
	s := metrics.NewServer("127.0.0.1:0", nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
