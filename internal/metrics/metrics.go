// Package metrics holds the coordination node's Prometheus collector sets
// (C14), grounded on the teacher's internal/escrow/metrics.go promauto
// pattern but scoped to this module's own domains (cache, lock, event
// store, saga) rather than reusing the teacher's escrow/ghostpool/
// reputation collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics instruments the MultiTierCache (C4) and its Codec (C1).
type CacheMetrics struct {
	Hits       *prometheus.CounterVec // label: tier (l1, l2, l3)
	Misses     prometheus.Counter
	Promotions prometheus.Counter
	Demotions  prometheus.Counter
	HitRate    prometheus.Gauge

	CodecEncodeTotal    prometheus.Counter
	CodecDecodeTotal    prometheus.Counter
	CodecBytesEncoded   prometheus.Counter
	CodecBytesDecoded   prometheus.Counter
	CodecEncodeDuration prometheus.Histogram
	CodecDecodeDuration prometheus.Histogram
}

// NewCacheMetrics registers the cache collector set on reg. Pass
// prometheus.DefaultRegisterer for process-global metrics, or a fresh
// *prometheus.Registry in tests to avoid duplicate-registration panics
// across parallel test cases.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	factory := promauto.With(reg)
	return &CacheMetrics{
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ocx_cache_hits_total",
			Help: "Cache hits by tier.",
		}, []string{"tier"}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_cache_misses_total",
			Help: "Cache misses across all tiers.",
		}),
		Promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_cache_promotions_total",
			Help: "Entries promoted to a hotter tier.",
		}),
		Demotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_cache_demotions_total",
			Help: "Entries demoted to a colder tier.",
		}),
		HitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ocx_cache_hit_rate",
			Help: "hits / (hits + misses), refreshed on Stats().",
		}),
		CodecEncodeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_codec_encode_total",
			Help: "Successful codec encode calls.",
		}),
		CodecDecodeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_codec_decode_total",
			Help: "Successful codec decode calls.",
		}),
		CodecBytesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_codec_bytes_encoded_total",
			Help: "Bytes produced by codec encode calls.",
		}),
		CodecBytesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_codec_bytes_decoded_total",
			Help: "Bytes consumed by codec decode calls.",
		}),
		CodecEncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocx_codec_encode_duration_seconds",
			Help:    "Codec encode latency.",
			Buckets: prometheus.DefBuckets,
		}),
		CodecDecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocx_codec_decode_duration_seconds",
			Help:    "Codec decode latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordHit records a hit at the given tier ("l1", "l2", "l3").
func (m *CacheMetrics) RecordHit(tier string) { m.Hits.WithLabelValues(tier).Inc() }

// RecordMiss records a miss across all tiers.
func (m *CacheMetrics) RecordMiss() { m.Misses.Inc() }

// RecordStats sets the hit-rate gauge from a cache.Stats snapshot's
// HitRate(). Set (not Add) keeps this idempotent across repeated
// scrape-interval calls; the hit/miss/promotion counters are not touched.
func (m *CacheMetrics) RecordStats(hitRate float64) {
	m.HitRate.Set(hitRate)
}

// LockMetrics instruments DistributedMutex/DistributedRwLock (C7) and the
// DeadlockDetector (C8).
type LockMetrics struct {
	AcquireTotal    *prometheus.CounterVec // labels: mode (read, write), result (acquired, timeout, denied)
	WaitDuration    *prometheus.HistogramVec
	HeldGauge       *prometheus.GaugeVec // label: mode
	DeadlocksFound  prometheus.Counter
	FencingRejected prometheus.Counter
}

func NewLockMetrics(reg prometheus.Registerer) *LockMetrics {
	factory := promauto.With(reg)
	return &LockMetrics{
		AcquireTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ocx_lock_acquire_total",
			Help: "Lock acquisition attempts by mode and result.",
		}, []string{"mode", "result"}),
		WaitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocx_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a lock.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		HeldGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ocx_lock_held",
			Help: "Locks currently held, by mode.",
		}, []string{"mode"}),
		DeadlocksFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_lock_deadlocks_detected_total",
			Help: "Wait-for cycles found by the background detector.",
		}),
		FencingRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_lock_fencing_rejected_total",
			Help: "Writes rejected for carrying a stale fencing token.",
		}),
	}
}

// RecordAcquire records one acquisition attempt and its wait time, whatever
// the result.
func (m *LockMetrics) RecordAcquire(mode, result string, wait time.Duration) {
	m.AcquireTotal.WithLabelValues(mode, result).Inc()
	m.WaitDuration.WithLabelValues(mode).Observe(wait.Seconds())
}

// EventStoreMetrics instruments the EventStore (C9), AggregateRepository
// (C10), and ProjectionManager (C11).
type EventStoreMetrics struct {
	AppendTotal        *prometheus.CounterVec // label: result (ok, version_conflict)
	EventsAppended     prometheus.Counter
	ProjectionLag      *prometheus.GaugeVec // label: projection
	ProjectionSkipped  *prometheus.CounterVec
	SagaStatus         *prometheus.GaugeVec // label: saga_type, status
	SagaStepDuration   *prometheus.HistogramVec
	SagaCompensations  prometheus.Counter
}

func NewEventStoreMetrics(reg prometheus.Registerer) *EventStoreMetrics {
	factory := promauto.With(reg)
	return &EventStoreMetrics{
		AppendTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ocx_eventstore_append_total",
			Help: "AppendEvents calls by result.",
		}, []string{"result"}),
		EventsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_eventstore_events_appended_total",
			Help: "Individual events persisted across all streams.",
		}),
		ProjectionLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ocx_projection_lag_events",
			Help: "Events between a projection's checkpoint and the store's global sequence.",
		}, []string{"projection"}),
		ProjectionSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ocx_projection_handler_errors_total",
			Help: "Events a projection's handler failed on and skipped.",
		}, []string{"projection"}),
		SagaStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ocx_saga_instances",
			Help: "Current saga instances by type and status.",
		}, []string{"saga_type", "status"}),
		SagaStepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocx_saga_step_duration_seconds",
			Help:    "Duration of a single saga step's ExecuteStep call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga_type"}),
		SagaCompensations: factory.NewCounter(prometheus.CounterOpts{
			Name: "ocx_saga_compensations_total",
			Help: "Sagas that entered compensation after a step failure.",
		}),
	}
}

// RecordAppend records one AppendEvents call and how many events it wrote.
func (m *EventStoreMetrics) RecordAppend(result string, eventCount int) {
	m.AppendTotal.WithLabelValues(result).Inc()
	m.EventsAppended.Add(float64(eventCount))
}

// RecordSagaStatus sets the gauge for sagaType/status to count, leaving
// other status gauges for the same type untouched (callers update each
// status they track independently as transitions happen).
func (m *EventStoreMetrics) RecordSagaStatus(sagaType, status string, count float64) {
	m.SagaStatus.WithLabelValues(sagaType, status).Set(count)
}

// Registry bundles every collector set the process exposes over /metrics.
type Registry struct {
	Cache      *CacheMetrics
	Lock       *LockMetrics
	EventStore *EventStoreMetrics
}

// NewRegistry builds and registers every collector set against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return &Registry{
		Cache:      NewCacheMetrics(reg),
		Lock:       NewLockMetrics(reg),
		EventStore: NewEventStoreMetrics(reg),
	}
}
