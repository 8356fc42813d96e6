package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("tutorrag.vectorstore.chromem")

const providerChromem = "chromem"

// errNoEmbeddingFunc is returned if chromem ever tries to embed text itself.
// Every record and query arrives with a precomputed vector.
var errNoEmbeddingFunc = errors.New("chromem store requires precomputed embeddings")

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory, which is what tests and local previews use.
	Path string

	// Compress enables gzip compression of persisted files.
	Compress bool

	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "documents"
	}
}

// ChromemStore keeps records in a chromem-go collection. chromem metadata is
// string-valued, so the record metadata is stored as JSON under one key.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore opens (or creates) the database and its collection.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{db: db, collection: collection, config: config, logger: logger}, nil
}

func noEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// Upsert adds the records; an existing ID is overwritten.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	defer observe(providerChromem, opUpsert, time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("records", len(records)),
	)
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		meta, merr := json.Marshal(r.Metadata)
		if merr != nil {
			err = fmt.Errorf("marshaling metadata of %s: %w", r.ID, merr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata: map[string]string{
				"doc_id":   r.DocID,
				"metadata": string(meta),
			},
		}
	}

	// Concurrency 1: vectors are precomputed, nothing to parallelize.
	if err = s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	RecordsUpserted.WithLabelValues(providerChromem).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// SimilaritySearch returns matches shaped like the supabase match function
// rows: id, doc_id, content, metadata, similarity.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) (matches []Match, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SimilaritySearch")
	defer span.End()
	defer observe(providerChromem, opSearch, time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("match_count", matchCount),
	)

	// chromem requires nResults <= document count.
	n := min(matchCount, s.collection.Count())
	if n <= 0 {
		return []Match{}, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches = make([]Match, len(results))
	for i, r := range results {
		m := Match{
			"id":         r.ID,
			"doc_id":     r.Metadata["doc_id"],
			"content":    r.Content,
			"similarity": float64(r.Similarity),
		}
		var meta map[string]any
		if raw := r.Metadata["metadata"]; raw != "" && json.Unmarshal([]byte(raw), &meta) == nil {
			m["metadata"] = meta
		}
		matches[i] = m
	}

	MatchesReturned.WithLabelValues(providerChromem).Add(float64(len(matches)))
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByDocID removes documents whose doc_id metadata equals docID, except
// the documents listed in keep.
func (s *ChromemStore) DeleteByDocID(ctx context.Context, docID string, keep ...string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByDocID")
	defer span.End()
	defer observe(providerChromem, opDelete, time.Now(), &err)

	span.SetAttributes(
		attribute.String("doc_id", docID),
		attribute.Int("kept", len(keep)),
	)

	if len(keep) == 0 {
		err = s.collection.Delete(ctx, map[string]string{"doc_id": docID}, nil)
	} else {
		var stale []string
		if stale, err = s.staleIDs(ctx, docID, keep); err == nil && len(stale) > 0 {
			err = s.collection.Delete(ctx, nil, nil, stale...)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents of %s: %w", docID, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// staleIDs lists the documents of docID that are not in keep. chromem can
// only filter metadata by equality, so the document's rows are enumerated
// with a query over all of them, using a kept row's vector as the query vector.
func (s *ChromemStore) staleIDs(ctx context.Context, docID string, keep []string) ([]string, error) {
	anchor, err := s.collection.GetByID(ctx, keep[0])
	if err != nil {
		return nil, fmt.Errorf("reading kept document %s: %w", keep[0], err)
	}
	results, err := s.collection.QueryEmbedding(ctx, anchor.Embedding, s.collection.Count(), map[string]string{"doc_id": docID}, nil)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var stale []string
	for _, r := range results {
		if _, ok := kept[r.ID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	return stale, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// Close is a no-op; persistent databases write through on every change.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

var _ Store = (*ChromemStore)(nil)
