package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tutorrag/internal/chunker"
	"github.com/fyrsmithlabs/tutorrag/internal/events"
	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/tutorrag/internal/rag"

var (
	// ErrStorePersistFailure wraps any store error during ingestion.
	ErrStorePersistFailure = errors.New("failed to persist document chunks")

	// ErrStoreQueryFailure wraps any store error during retrieval.
	ErrStoreQueryFailure = errors.New("failed to query vector store")

	// ErrInvalidRequest indicates a malformed ingest request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServiceClosed is returned after Close.
	ErrServiceClosed = errors.New("service is closed")
)

// Embedder produces document and query embeddings.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config configures the RAG service.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// MatchCount is used when RetrieveContext is called with matchCount <= 0.
	MatchCount int
	// EmbedConcurrency bounds concurrent chunk embeddings per document.
	EmbedConcurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        chunker.DefaultChunkSize,
		ChunkOverlap:     chunker.DefaultOverlap,
		MatchCount:       4,
		EmbedConcurrency: 4,
	}
}

// IngestRequest is a document to chunk, embed and store.
type IngestRequest struct {
	DocumentID string
	Title      string
	Text       string
	Metadata   Metadata
	// ReplaceExisting removes earlier chunks stored under DocumentID first.
	ReplaceExisting bool
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	DocumentID    string `json:"document_id"`
	Chunks        int    `json:"chunks"`
	TokenEstimate int    `json:"token_estimate"`
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher notified after each successful ingest.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Instrumentation supplies the tracer and meter for the service.
// *telemetry.Telemetry satisfies it.
type Instrumentation interface {
	Tracer(name string, opts ...trace.TracerOption) trace.Tracer
	Meter(name string, opts ...metric.MeterOption) metric.Meter
}

// WithInstrumentation replaces the global OTel providers.
func WithInstrumentation(i Instrumentation) Option {
	return func(s *Service) {
		if i != nil {
			s.tracer = i.Tracer(instrumentationName)
			s.meter = i.Meter(instrumentationName)
		}
	}
}

// Service implements document ingestion and context retrieval.
type Service struct {
	cfg       Config
	chunker   *chunker.Chunker
	embedder  Embedder
	store     vectorstore.Store
	publisher events.Publisher
	logger    *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	ingestCounter   metric.Int64Counter
	chunkCounter    metric.Int64Counter
	retrieveCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService creates a RAG service. Zero config fields take their defaults,
// except ChunkOverlap where zero is a valid choice.
func NewService(cfg Config, embedder Embedder, store vectorstore.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = defaults.MatchCount
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaults.EmbedConcurrency
	}

	c, err := chunker.New(chunker.WithSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		chunker:   c,
		embedder:  embedder,
		store:     store,
		publisher: events.Noop{},
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initMetrics()

	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.ingestCounter, err = s.meter.Int64Counter(
		"tutorrag.rag.documents_ingested_total",
		metric.WithDescription("Total number of documents ingested"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		s.logger.Warn("failed to create ingest counter", zap.Error(err))
	}

	s.chunkCounter, err = s.meter.Int64Counter(
		"tutorrag.rag.chunks_stored_total",
		metric.WithDescription("Total number of chunks stored"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		s.logger.Warn("failed to create chunk counter", zap.Error(err))
	}

	s.retrieveCounter, err = s.meter.Int64Counter(
		"tutorrag.rag.retrievals_total",
		metric.WithDescription("Total number of context retrievals"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		s.logger.Warn("failed to create retrieve counter", zap.Error(err))
	}

	s.droppedCounter, err = s.meter.Int64Counter(
		"tutorrag.rag.matches_dropped_total",
		metric.WithDescription("Matches dropped for missing or non-string content"),
		metric.WithUnit("{match}"),
	)
	if err != nil {
		s.logger.Warn("failed to create dropped match counter", zap.Error(err))
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Chunker returns the chunker used for ingestion.
func (s *Service) Chunker() *chunker.Chunker { return s.chunker }

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// IngestDocument chunks, embeds and stores a document.
//
// A document with no chunks returns a zero result without calling the
// embedder or the store, unless ReplaceExisting is set, in which case the
// document's previous chunks are removed. Any embedding failure aborts before
// anything is persisted; store failures wrap ErrStorePersistFailure.
//
// With ReplaceExisting the new chunks are written first and only then are
// the document's other chunks deleted, so a failed write never leaves the
// document without rows.
func (s *Service) IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := s.tracer.Start(ctx, "rag.ingest_document")
	defer span.End()

	span.SetAttributes(
		attribute.String("document_id", req.DocumentID),
		attribute.Bool("replace_existing", req.ReplaceExisting),
	)

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, fmt.Errorf("%w: document_id is required", ErrInvalidRequest)
	}

	chunks := s.chunker.Split(req.Text)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if len(chunks) == 0 && !req.ReplaceExisting {
		return &IngestResult{DocumentID: req.DocumentID}, nil
	}

	if err := s.storeReady(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStorePersistFailure, err)
	}

	if len(chunks) == 0 {
		if err := s.store.DeleteByDocID(ctx, req.DocumentID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: delete previous chunks: %w", ErrStorePersistFailure, err)
		}
		s.logger.Info("cleared document with no content", zap.String("document_id", req.DocumentID))
		return &IngestResult{DocumentID: req.DocumentID}, nil
	}

	embeddings, err := s.embedChunks(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tokens := 0
	records := make([]vectorstore.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		tokens += len(strings.Fields(c.Content))
		ids[i] = uuid.NewString()
		records[i] = vectorstore.Record{
			ID:        ids[i],
			DocID:     req.DocumentID,
			Content:   c.Content,
			Metadata:  req.Metadata.forChunk(c.Index, req.Title),
			Embedding: embeddings[i],
		}
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStorePersistFailure, err)
	}

	if req.ReplaceExisting {
		if err := s.store.DeleteByDocID(ctx, req.DocumentID, ids...); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: delete previous chunks: %w", ErrStorePersistFailure, err)
		}
	}

	result := &IngestResult{
		DocumentID:    req.DocumentID,
		Chunks:        len(records),
		TokenEstimate: tokens,
	}

	if s.ingestCounter != nil {
		s.ingestCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("replace_existing", req.ReplaceExisting),
		))
	}
	if s.chunkCounter != nil {
		s.chunkCounter.Add(ctx, int64(len(records)))
	}

	s.logger.Info("ingested document",
		zap.String("document_id", req.DocumentID),
		zap.String("title", req.Title),
		zap.Int("chunks", result.Chunks),
		zap.Int("token_estimate", result.TokenEstimate),
	)

	if err := s.publisher.PublishDocumentIngested(ctx, events.DocumentIngested{
		DocumentID:    result.DocumentID,
		Title:         req.Title,
		Chunks:        result.Chunks,
		TokenEstimate: result.TokenEstimate,
		Replaced:      req.ReplaceExisting,
		IngestedAt:    time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish ingest event",
			zap.String("document_id", req.DocumentID),
			zap.Error(err),
		)
	}

	return result, nil
}

// storeReady reports a store that cannot be built before any embedding is
// paid for. Stores without a Ready method are assumed usable.
func (s *Service) storeReady() error {
	r, ok := s.store.(interface{ Ready() error })
	if !ok {
		return nil
	}
	return r.Ready()
}

// embedChunks embeds every chunk with at most EmbedConcurrency calls in
// flight. Results are index-addressed so they line up with chunk_index.
func (s *Service) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	ctx, span := s.tracer.Start(ctx, "rag.embed_chunks")
	defer span.End()

	out := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.EmbedDocument(gctx, c.Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", c.Index, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// RetrieveContext returns up to matchCount stored chunks similar to query.
// matchCount <= 0 uses the configured default. An empty query returns an
// empty slice without calling the embedder or the store.
func (s *Service) RetrieveContext(ctx context.Context, query string, matchCount int) ([]vectorstore.Match, error) {
	ctx, span := s.tracer.Start(ctx, "rag.retrieve_context")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []vectorstore.Match{}, nil
	}
	if matchCount <= 0 {
		matchCount = s.cfg.MatchCount
	}
	span.SetAttributes(attribute.Int("match_count", matchCount))

	if err := s.storeReady(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStoreQueryFailure, err)
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	raw, err := s.store.SimilaritySearch(ctx, embedding, matchCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStoreQueryFailure, err)
	}

	matches, dropped := FilterMatches(raw)
	if dropped > 0 {
		if s.droppedCounter != nil {
			s.droppedCounter.Add(ctx, int64(dropped))
		}
		s.logger.Debug("dropped malformed matches", zap.Int("dropped", dropped))
	}
	if s.retrieveCounter != nil {
		s.retrieveCounter.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))

	return matches, nil
}

// FilterMatches keeps matches whose content is a non-empty string and
// reports how many were dropped. Order is preserved.
func FilterMatches(raw []vectorstore.Match) ([]vectorstore.Match, int) {
	out := make([]vectorstore.Match, 0, len(raw))
	for _, m := range raw {
		if content, ok := m.Content(); ok && content != "" {
			out = append(out, m)
		}
	}
	return out, len(raw) - len(out)
}

// Close closes the publisher and the store. Subsequent calls fail with
// ErrServiceClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return errors.Join(s.publisher.Close(), s.store.Close())
}
