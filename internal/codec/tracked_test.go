package codec_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/coordination/internal/codec"
	"github.com/ocx/coordination/internal/metrics"
)

type failingEncoder struct {
	encodeErr error
	decodeErr error
}

func (f failingEncoder) Encode(v widget) (codec.EncodedData, error) {
	if f.encodeErr != nil {
		return codec.EncodedData{}, f.encodeErr
	}
	return codec.EncodedData{CompressedSize: 7}, nil
}

func (f failingEncoder) Decode(codec.EncodedData) (widget, error) {
	if f.decodeErr != nil {
		return widget{}, f.decodeErr
	}
	return widget{Name: "decoded"}, nil
}

func TestTrackedCodecAccumulatesCountersOnSuccess(t *testing.T) {
	inner := codec.New[widget](codec.DefaultConfig())
	tracked := codec.NewTracked[widget](inner)

	env, err := tracked.Encode(widget{Name: "bolt-m6", Count: 42})
	require.NoError(t, err)

	_, err = tracked.Decode(env)
	require.NoError(t, err)

	stats := tracked.Stats()
	assert.EqualValues(t, 1, stats.EncodeCount)
	assert.EqualValues(t, 1, stats.DecodeCount)
	assert.Equal(t, env.CompressedSize, stats.BytesEncoded)
	assert.Equal(t, env.CompressedSize, stats.BytesDecoded)
}

func TestTrackedCodecLeavesCountersOnFailure(t *testing.T) {
	tracked := codec.NewTracked[widget](failingEncoder{encodeErr: errors.New("boom")})

	_, err := tracked.Encode(widget{})
	require.Error(t, err)

	stats := tracked.Stats()
	assert.Zero(t, stats.EncodeCount)
	assert.Zero(t, stats.BytesEncoded)
}

func TestTrackedCodecWithMetricsRecordsPrometheusCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(reg)

	tracked := codec.NewTracked[widget](failingEncoder{}).WithMetrics(cacheMetrics)

	env, err := tracked.Encode(widget{Name: "a"})
	require.NoError(t, err)
	_, err = tracked.Decode(env)
	require.NoError(t, err)

	assert.Equal(t, float64(1), counterValue(t, cacheMetrics.CodecEncodeTotal))
	assert.Equal(t, float64(1), counterValue(t, cacheMetrics.CodecDecodeTotal))
	assert.Equal(t, float64(7), counterValue(t, cacheMetrics.CodecBytesEncoded))
	assert.Equal(t, float64(7), counterValue(t, cacheMetrics.CodecBytesDecoded))
}

func TestTrackedCodecWithMetricsSkipsFailedCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(reg)

	tracked := codec.NewTracked[widget](failingEncoder{encodeErr: errors.New("boom")}).WithMetrics(cacheMetrics)

	_, err := tracked.Encode(widget{})
	require.Error(t, err)

	assert.Zero(t, counterValue(t, cacheMetrics.CodecEncodeTotal))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
