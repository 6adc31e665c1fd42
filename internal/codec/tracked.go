package codec

import (
	"sync/atomic"
	"time"

	"github.com/ocx/coordination/internal/metrics"
)

// Encoder is the subset of Codec/VersionedCodec behavior TrackedCodec wraps.
type Encoder[V any] interface {
	Encode(value V) (EncodedData, error)
	Decode(env EncodedData) (V, error)
}

// Stats holds the advisory counters TrackedCodec accumulates. A failed
// Encode/Decode call never updates these.
type Stats struct {
	EncodeCount   uint64
	DecodeCount   uint64
	BytesEncoded  uint64
	BytesDecoded  uint64
	EncodeMicros  uint64
	DecodeMicros  uint64
}

// AvgEncodeMicros returns the mean time spent in successful Encode calls.
func (s Stats) AvgEncodeMicros() float64 {
	if s.EncodeCount == 0 {
		return 0
	}
	return float64(s.EncodeMicros) / float64(s.EncodeCount)
}

// AvgDecodeMicros returns the mean time spent in successful Decode calls.
func (s Stats) AvgDecodeMicros() float64 {
	if s.DecodeCount == 0 {
		return 0
	}
	return float64(s.DecodeMicros) / float64(s.DecodeCount)
}

// TrackedCodec wraps an Encoder with monotonic counters for encode/decode
// calls, bytes moved, and elapsed time. Counters are advisory: a failed call
// leaves them untouched.
type TrackedCodec[V any] struct {
	inner   Encoder[V]
	metrics *metrics.CacheMetrics

	encodeCount  atomic.Uint64
	decodeCount  atomic.Uint64
	bytesEncoded atomic.Uint64
	bytesDecoded atomic.Uint64
	encodeMicros atomic.Uint64
	decodeMicros atomic.Uint64
}

// NewTracked wraps inner with counters.
func NewTracked[V any](inner Encoder[V]) *TrackedCodec[V] {
	return &TrackedCodec[V]{inner: inner}
}

// WithMetrics attaches a Prometheus collector set that every successful
// Encode/Decode also reports to, alongside the existing atomic counters.
// Pass nil to detach (the default); reporting is then advisory-only.
func (t *TrackedCodec[V]) WithMetrics(m *metrics.CacheMetrics) *TrackedCodec[V] {
	t.metrics = m
	return t
}

func (t *TrackedCodec[V]) Encode(value V) (EncodedData, error) {
	start := time.Now()
	env, err := t.inner.Encode(value)
	if err != nil {
		return env, err
	}
	elapsed := time.Since(start)
	t.encodeCount.Add(1)
	t.bytesEncoded.Add(env.CompressedSize)
	t.encodeMicros.Add(uint64(elapsed.Microseconds()))
	if t.metrics != nil {
		t.metrics.CodecEncodeTotal.Inc()
		t.metrics.CodecBytesEncoded.Add(float64(env.CompressedSize))
		t.metrics.CodecEncodeDuration.Observe(elapsed.Seconds())
	}
	return env, nil
}

func (t *TrackedCodec[V]) Decode(env EncodedData) (V, error) {
	start := time.Now()
	value, err := t.inner.Decode(env)
	if err != nil {
		var zero V
		return zero, err
	}
	elapsed := time.Since(start)
	t.decodeCount.Add(1)
	t.bytesDecoded.Add(env.CompressedSize)
	t.decodeMicros.Add(uint64(elapsed.Microseconds()))
	if t.metrics != nil {
		t.metrics.CodecDecodeTotal.Inc()
		t.metrics.CodecBytesDecoded.Add(float64(env.CompressedSize))
		t.metrics.CodecDecodeDuration.Observe(elapsed.Seconds())
	}
	return value, nil
}

// Stats returns a snapshot of the accumulated counters.
func (t *TrackedCodec[V]) Stats() Stats {
	return Stats{
		EncodeCount:  t.encodeCount.Load(),
		DecodeCount:  t.decodeCount.Load(),
		BytesEncoded: t.bytesEncoded.Load(),
		BytesDecoded: t.bytesDecoded.Load(),
		EncodeMicros: t.encodeMicros.Load(),
		DecodeMicros: t.decodeMicros.Load(),
	}
}
