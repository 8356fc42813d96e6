package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) (*Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := &Metrics{
		meter:  mp.Meter(embeddingsInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_RecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "models/text-embedding-004", TaskDocument, 100*time.Millisecond, 120, nil)
	m.RecordGeneration(ctx, "models/text-embedding-004", TaskQuery, 50*time.Millisecond, 12, nil)
	m.RecordGeneration(ctx, "models/text-embedding-004", TaskDocument, 25*time.Millisecond, 40, errors.New("boom"))

	got := collect(t, reader)

	duration, ok := got["tutorrag.embedding.generation_duration_seconds"]
	require.True(t, ok)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	errs, ok := got["tutorrag.embedding.errors_total"]
	require.True(t, ok)
	sum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(1), total)

	_, ok = got["tutorrag.embedding.input_chars"]
	assert.True(t, ok)
}

func TestMetrics_RecordSkipped(t *testing.T) {
	m, reader := newTestMetrics(t)

	e, err := NewEmbedder(&mockProvider{vector: []float32{1}}, WithMetrics(m))
	require.NoError(t, err)
	_, err = e.EmbedQuery(context.Background(), "  ")
	require.NoError(t, err)

	got := collect(t, reader)
	skipped, ok := got["tutorrag.embedding.empty_inputs_total"]
	require.True(t, ok)
	sum, ok := skipped.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", TaskQuery, time.Second, 1, nil)
		m.RecordSkipped(context.Background(), TaskQuery)
	})
}
