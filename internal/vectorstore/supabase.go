package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/supabase"
)

var supabaseTracer = otel.Tracer("tutorrag.vectorstore.supabase")

const providerSupabase = "supabase"

// SupabaseConfig configures the PostgREST-backed store.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
	MatchFunction  string
	Timeout        time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *SupabaseConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "documents"
	}
	if c.MatchFunction == "" {
		c.MatchFunction = "match_documents"
	}
}

// Validate validates the configuration.
func (c SupabaseConfig) Validate() error {
	if c.URL == "" || c.ServiceRoleKey == "" {
		return fmt.Errorf("%w: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required", ErrConfigurationMissing)
	}
	return nil
}

// SupabaseStore upserts into a table through PostgREST and searches with an
// RPC call to a SQL function taking (query_embedding, match_count).
type SupabaseStore struct {
	client *supabase.Client
	config SupabaseConfig
	logger *zap.Logger
}

// NewSupabaseStore creates a store. It does not contact the server.
func NewSupabaseStore(config SupabaseConfig, logger *zap.Logger) (*SupabaseStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := supabase.New(supabase.Config{
		URL:            config.URL,
		ServiceRoleKey: config.ServiceRoleKey,
		Timeout:        config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &SupabaseStore{client: client, config: config, logger: logger}, nil
}

// Upsert writes all records in one request.
func (s *SupabaseStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := supabaseTracer.Start(ctx, "SupabaseStore.Upsert")
	defer span.End()
	defer observe(providerSupabase, opUpsert, time.Now(), &err)

	span.SetAttributes(
		attribute.String("table", s.config.Table),
		attribute.Int("records", len(records)),
	)
	if len(records) == 0 {
		return nil
	}

	if err = s.client.Upsert(ctx, s.config.Table, records, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", s.config.Table, err)
	}

	RecordsUpserted.WithLabelValues(providerSupabase).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted records",
		zap.String("table", s.config.Table),
		zap.Int("records", len(records)),
	)
	return nil
}

type matchParams struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchCount     int       `json:"match_count"`
}

// SimilaritySearch calls the match function. Rows come back untouched except
// that non-object rows become nil matches.
func (s *SupabaseStore) SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) (matches []Match, err error) {
	ctx, span := supabaseTracer.Start(ctx, "SupabaseStore.SimilaritySearch")
	defer span.End()
	defer observe(providerSupabase, opSearch, time.Now(), &err)

	span.SetAttributes(
		attribute.String("function", s.config.MatchFunction),
		attribute.Int("match_count", matchCount),
	)

	var rows []json.RawMessage
	err = s.client.RPC(ctx, s.config.MatchFunction, matchParams{
		QueryEmbedding: embedding,
		MatchCount:     matchCount,
	}, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("calling %s: %w", s.config.MatchFunction, err)
	}

	matches = decodeMatches(rows)
	MatchesReturned.WithLabelValues(providerSupabase).Add(float64(len(matches)))
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByDocID removes rows whose doc_id column equals docID and whose id
// is not in keep.
func (s *SupabaseStore) DeleteByDocID(ctx context.Context, docID string, keep ...string) (err error) {
	ctx, span := supabaseTracer.Start(ctx, "SupabaseStore.DeleteByDocID")
	defer span.End()
	defer observe(providerSupabase, opDelete, time.Now(), &err)

	span.SetAttributes(
		attribute.String("doc_id", docID),
		attribute.Int("kept", len(keep)),
	)

	filters := []supabase.Filter{supabase.Eq("doc_id", docID)}
	if len(keep) > 0 {
		filters = append(filters, supabase.NotIn("id", keep...))
	}
	if err = s.client.Delete(ctx, s.config.Table, filters...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting rows of %s: %w", docID, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; the PostgREST client holds no connections of its own.
func (s *SupabaseStore) Close() error {
	return nil
}

// decodeMatches turns raw JSON rows into matches, keeping positions: a row
// that is not a JSON object yields a nil entry.
func decodeMatches(rows []json.RawMessage) []Match {
	matches := make([]Match, len(rows))
	for i, raw := range rows {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var m Match
		if err := json.Unmarshal(trimmed, &m); err != nil {
			continue
		}
		matches[i] = m
	}
	return matches
}

var _ Store = (*SupabaseStore)(nil)
