package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var postgresTracer = otel.Tracer("tutorrag.vectorstore.postgres")

const providerPostgres = "postgres"

// PostgresConfig configures direct access to a pgvector table, typically the
// database behind a Supabase project.
type PostgresConfig struct {
	DSN           string
	Table         string
	MatchFunction string
	MaxConns      int32
}

// ApplyDefaults sets default values for unset fields.
func (c *PostgresConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "documents"
	}
	if c.MatchFunction == "" {
		c.MatchFunction = "match_documents"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 8
	}
}

// Validate validates the configuration.
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: POSTGRES_DSN is required", ErrConfigurationMissing)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("%w: max conns must be positive", ErrInvalidConfig)
	}
	return nil
}

// PostgresStore talks SQL to the same schema the supabase provider uses:
// a table (id uuid, doc_id text, content text, metadata jsonb,
// embedding vector) and a match function returning ranked rows.
type PostgresStore struct {
	pool   *pgxpool.Pool
	config PostgresConfig
	logger *zap.Logger

	upsertSQL string
	searchSQL string
	deleteSQL string
}

// NewPostgresStore creates a pooled store. Connections open on first use.
func NewPostgresStore(ctx context.Context, config PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing dsn: %v", ErrInvalidConfig, err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	table := pgx.Identifier{config.Table}.Sanitize()
	function := pgx.Identifier{config.MatchFunction}.Sanitize()

	return &PostgresStore{
		pool:   pool,
		config: config,
		logger: logger,
		upsertSQL: `INSERT INTO ` + table + ` (id, doc_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (id) DO UPDATE SET
	doc_id = EXCLUDED.doc_id,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding`,
		searchSQL: `SELECT to_jsonb(m) FROM ` + function + `($1::vector, $2) AS m`,
		deleteSQL: `DELETE FROM ` + table + ` WHERE doc_id = $1 AND NOT (id::text = ANY($2::text[]))`,
	}, nil
}

// Upsert writes all records in one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := postgresTracer.Start(ctx, "PostgresStore.Upsert")
	defer span.End()
	defer observe(providerPostgres, opUpsert, time.Now(), &err)

	span.SetAttributes(
		attribute.String("table", s.config.Table),
		attribute.Int("records", len(records)),
	)
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, merr := json.Marshal(r.Metadata)
		if merr != nil {
			err = fmt.Errorf("marshaling metadata of %s: %w", r.ID, merr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		batch.Queue(s.upsertSQL, r.ID, r.DocID, r.Content, string(meta), pgvector.NewVector(r.Embedding))
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", s.config.Table, err)
	}

	RecordsUpserted.WithLabelValues(providerPostgres).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// SimilaritySearch calls the match function and returns each row as JSON.
func (s *PostgresStore) SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) (matches []Match, err error) {
	ctx, span := postgresTracer.Start(ctx, "PostgresStore.SimilaritySearch")
	defer span.End()
	defer observe(providerPostgres, opSearch, time.Now(), &err)

	span.SetAttributes(
		attribute.String("function", s.config.MatchFunction),
		attribute.Int("match_count", matchCount),
	)

	rows, err := s.pool.Query(ctx, s.searchSQL, pgvector.NewVector(embedding), matchCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("calling %s: %w", s.config.MatchFunction, err)
	}

	raw, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (json.RawMessage, error) {
		var b []byte
		err := row.Scan(&b)
		return json.RawMessage(b), err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading %s rows: %w", s.config.MatchFunction, err)
	}

	matches = decodeMatches(raw)
	MatchesReturned.WithLabelValues(providerPostgres).Add(float64(len(matches)))
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByDocID removes rows whose doc_id equals docID and whose id is not
// in keep.
func (s *PostgresStore) DeleteByDocID(ctx context.Context, docID string, keep ...string) (err error) {
	ctx, span := postgresTracer.Start(ctx, "PostgresStore.DeleteByDocID")
	defer span.End()
	defer observe(providerPostgres, opDelete, time.Now(), &err)

	// A nil slice binds as NULL, and NOT (x = ANY(NULL)) matches nothing.
	if keep == nil {
		keep = []string{}
	}
	tag, err := s.pool.Exec(ctx, s.deleteSQL, docID, keep)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting rows of %s: %w", docID, err)
	}
	span.SetAttributes(
		attribute.String("doc_id", docID),
		attribute.Int64("deleted", tag.RowsAffected()),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
