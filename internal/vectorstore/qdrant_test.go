package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestQdrantConfig_Validate(t *testing.T) {
	valid := func() QdrantConfig {
		c := QdrantConfig{Host: "localhost", VectorSize: 768}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*QdrantConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(*QdrantConfig) {}},
		{name: "missing host", mutate: func(c *QdrantConfig) { c.Host = "" }, wantErr: ErrConfigurationMissing},
		{name: "bad port", mutate: func(c *QdrantConfig) { c.Port = 70000 }, wantErr: ErrInvalidConfig},
		{name: "uppercase collection", mutate: func(c *QdrantConfig) { c.Collection = "Docs" }, wantErr: ErrInvalidConfig},
		{name: "path traversal collection", mutate: func(c *QdrantConfig) { c.Collection = "../docs" }, wantErr: ErrInvalidConfig},
		{name: "zero vector size", mutate: func(c *QdrantConfig) { c.VectorSize = 0 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	c := QdrantConfig{}
	c.ApplyDefaults()
	assert.Equal(t, 6334, c.Port)
	assert.Equal(t, "tutorrag_documents", c.Collection)
	assert.Equal(t, 50*1024*1024, c.MaxMessageSize)
}

func TestRecordPayload_RoundTrip(t *testing.T) {
	payload, err := recordPayload(Record{
		ID:      "id-1",
		DocID:   "lesson-1",
		Content: "Hàm số bậc nhất",
		Metadata: map[string]any{
			"chunk_index": 3,
			"doc_title":   "Đại số 10",
			"score":       0.75,
			"tags":        []string{"algebra", "grade-10"},
			"source":      map[string]any{"category": "exercises"},
			"reviewed":    true,
			"note":        nil,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "lesson-1", payload["doc_id"].GetStringValue())
	assert.Equal(t, "Hàm số bậc nhất", payload["content"].GetStringValue())

	meta, ok := fromQdrantValue(payload["metadata"]).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), meta["chunk_index"])
	assert.Equal(t, "Đại số 10", meta["doc_title"])
	assert.InDelta(t, 0.75, meta["score"], 1e-9)
	assert.Equal(t, []any{"algebra", "grade-10"}, meta["tags"])
	assert.Equal(t, map[string]any{"category": "exercises"}, meta["source"])
	assert.Equal(t, true, meta["reviewed"])
	assert.Nil(t, meta["note"])
}

func TestDocIDFilter(t *testing.T) {
	f := docIDFilter("lesson-7")
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, "doc_id", field.GetKey())
	assert.Equal(t, "lesson-7", field.GetMatch().GetKeyword())
}

func TestFromQdrantValue_Unknown(t *testing.T) {
	assert.Nil(t, fromQdrantValue(&qdrant.Value{}))
}

// TestQdrantStore_Integration needs a Qdrant server; set QDRANT_TEST_HOST.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_TEST_HOST")
	if host == "" || testing.Short() {
		t.Skip("QDRANT_TEST_HOST not set")
	}
	ctx := context.Background()

	store, err := NewQdrantStore(ctx, QdrantConfig{
		Host:       host,
		Collection: "tutorrag_test_" + uuid.NewString()[:8],
		VectorSize: 3,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(ctx, store.config.Collection)
		_ = store.Close()
	})

	docID := "lesson-" + uuid.NewString()
	keepID := uuid.NewString()
	require.NoError(t, store.Upsert(ctx, []Record{
		{ID: uuid.NewString(), DocID: docID, Content: "a", Metadata: map[string]any{"chunk_index": 0}, Embedding: []float32{1, 0, 0}},
		{ID: keepID, DocID: docID, Content: "b", Metadata: map[string]any{"chunk_index": 1}, Embedding: []float32{0, 1, 0}},
	}))

	matches, err := store.SimilaritySearch(ctx, []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0]["content"])
	assert.Equal(t, docID, matches[0]["doc_id"])

	require.NoError(t, store.DeleteByDocID(ctx, docID, keepID))
	matches, err = store.SimilaritySearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0]["content"])

	require.NoError(t, store.DeleteByDocID(ctx, docID))
	matches, err = store.SimilaritySearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
