package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Embedder applies the shared embedding contract on top of a Provider.
// It is safe for concurrent use when the provider is.
type Embedder struct {
	provider Provider
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   *zap.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithRateLimit caps provider calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) EmbedderOption {
	return func(e *Embedder) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) EmbedderOption {
	return func(e *Embedder) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) EmbedderOption {
	return func(e *Embedder) { e.metrics = m }
}

// NewEmbedder wraps provider.
func NewEmbedder(provider Provider, opts ...EmbedderOption) (*Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	e := &Embedder{provider: provider, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(e.logger)
	}
	return e, nil
}

// Embed returns the vector for text. Whitespace-only text returns an empty
// vector without calling the provider.
func (e *Embedder) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		e.metrics.RecordSkipped(ctx, task)
		return []float32{}, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	start := time.Now()
	vec, err := e.provider.Embed(ctx, text, task)
	if err == nil && len(vec) == 0 {
		err = fmt.Errorf("%w: %s returned no vector for %s input", ErrEmbeddingUnavailable, e.provider.Model(), task)
	}
	e.metrics.RecordGeneration(ctx, e.provider.Model(), task, time.Since(start), utf8.RuneCountInString(text), err)
	if err != nil {
		e.logger.Debug("embedding failed",
			zap.String("model", e.provider.Model()),
			zap.String("task", string(task)),
			zap.Error(err),
		)
		return nil, err
	}
	return vec, nil
}

// EmbedDocument embeds text for storage.
func (e *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text, TaskDocument)
}

// EmbedQuery embeds a search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text, TaskQuery)
}

// Model returns the provider's model name.
func (e *Embedder) Model() string {
	return e.provider.Model()
}

// Dimension returns the provider's vector size.
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

// Close closes the provider.
func (e *Embedder) Close() error {
	return e.provider.Close()
}
