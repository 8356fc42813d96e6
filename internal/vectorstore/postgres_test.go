package vectorstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

func TestPostgresConfig_Validate(t *testing.T) {
	c := vectorstore.PostgresConfig{}
	c.ApplyDefaults()
	assert.ErrorIs(t, c.Validate(), vectorstore.ErrConfigurationMissing)
	assert.Equal(t, "documents", c.Table)
	assert.Equal(t, "match_documents", c.MatchFunction)

	c.DSN = "postgres://localhost/tutor"
	assert.NoError(t, c.Validate())
}

func TestNewPostgresStore_BadDSN(t *testing.T) {
	_, err := vectorstore.NewPostgresStore(context.Background(), vectorstore.PostgresConfig{DSN: "::not a dsn::"}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

// TestPostgresStore_Integration runs against a pgvector database with the
// documents table and match_documents function; set POSTGRES_TEST_DSN.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	store, err := vectorstore.NewPostgresStore(ctx, vectorstore.PostgresConfig{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	docID := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = store.DeleteByDocID(ctx, docID) })

	emb := make([]float32, 768)
	emb[0] = 1
	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{{
		ID:        uuid.NewString(),
		DocID:     docID,
		Content:   "integration row",
		Metadata:  map[string]any{"chunk_index": 0},
		Embedding: emb,
	}}))

	matches, err := store.SimilaritySearch(ctx, emb, 1)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "integration row", matches[0]["content"])

	keepID := uuid.NewString()
	require.NoError(t, store.Upsert(ctx, []vectorstore.Record{{
		ID:        keepID,
		DocID:     docID,
		Content:   "replacement row",
		Metadata:  map[string]any{"chunk_index": 0},
		Embedding: emb,
	}}))
	require.NoError(t, store.DeleteByDocID(ctx, docID, keepID))

	matches, err = store.SimilaritySearch(ctx, emb, 5)
	require.NoError(t, err)
	var contents []any
	for _, m := range matches {
		contents = append(contents, m["content"])
	}
	assert.Contains(t, contents, "replacement row")
	assert.NotContains(t, contents, "integration row")
}
