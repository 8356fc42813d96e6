package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/tutorrag/internal/embeddings"

// Metrics holds embedding instruments.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	duration   metric.Float64Histogram
	inputChars metric.Int64Histogram
	errors     metric.Int64Counter
	skipped    metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(embeddingsInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"tutorrag.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of a provider embedding call in seconds, labeled by model and task (document, query)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.inputChars, err = m.meter.Int64Histogram(
		"tutorrag.embedding.input_chars",
		metric.WithDescription("Length of embedded text in characters"),
		metric.WithUnit("{char}"),
		metric.WithExplicitBucketBoundaries(50, 100, 250, 500, 1000, 1500, 2500, 5000),
	)
	if err != nil {
		m.logger.Warn("failed to create input size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"tutorrag.embedding.errors_total",
		metric.WithDescription("Embedding failures by model and task, including empty provider responses"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.skipped, err = m.meter.Int64Counter(
		"tutorrag.embedding.empty_inputs_total",
		metric.WithDescription("Whitespace-only inputs answered with an empty vector without calling the provider"),
		metric.WithUnit("{input}"),
	)
	if err != nil {
		m.logger.Warn("failed to create skipped counter", zap.Error(err))
	}
}

// RecordGeneration records one provider call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, task TaskType, duration time.Duration, inputChars int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("task", string(task)),
	)

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if inputChars > 0 && m.inputChars != nil {
		m.inputChars.Record(ctx, int64(inputChars), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordSkipped records an empty input short circuit.
func (m *Metrics) RecordSkipped(ctx context.Context, task TaskType) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("task", string(task))))
}
