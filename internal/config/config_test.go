package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutorrag/internal/chunker"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.NATS.FlushTimeout.Duration())
	assert.Equal(t, "documents", cfg.Supabase.VectorTable)
	assert.Equal(t, "match_documents", cfg.Supabase.MatchFunction)
	assert.Equal(t, 1200, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 4, cfg.RAG.MatchCount)
	assert.Equal(t, 5, cfg.Library.MaxFiles)
	assert.Equal(t, "tutorrag.documents.ingested", cfg.NATS.Subject)
	assert.Equal(t, "node_progress", cfg.Progress.Table)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("SUPABASE_VECTOR_TABLE", "lesson_chunks")
	t.Setenv("SUPABASE_MATCH_FUNCTION", "match_lesson_chunks")
	t.Setenv("RAG_CHUNK_SIZE", "800")
	t.Setenv("RAG_CHUNK_OVERLAP", "0")
	t.Setenv("RAG_MATCH_COUNT", "6")
	t.Setenv("SERVER_HTTP_PORT", "8088")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("SERVER_REQUEST_TIMEOUT", "90s")
	t.Setenv("NATS_FLUSH_TIMEOUT", "5")
	t.Setenv("EMBEDDINGS_TIMEOUT", "45s")
	t.Setenv("LIBRARY_WATCH", "true")
	t.Setenv("VECTORSTORE_PROVIDER", "chromem")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "service-role", cfg.Supabase.ServiceRoleKey.Value())
	assert.Equal(t, "lesson_chunks", cfg.Supabase.VectorTable)
	assert.Equal(t, "match_lesson_chunks", cfg.Supabase.MatchFunction)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 0, cfg.RAG.ChunkOverlap, "explicit zero overlap must survive defaults")
	assert.Equal(t, 6, cfg.RAG.MatchCount)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.NATS.FlushTimeout.Duration())
	assert.Equal(t, 45*time.Second, cfg.Embeddings.Timeout.Duration())
	assert.True(t, cfg.Library.Watch)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoad_RejectsInvalidChunking(t *testing.T) {
	t.Setenv("RAG_CHUNK_SIZE", "100")
	t.Setenv("RAG_CHUNK_OVERLAP", "100")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, chunker.ErrInvalidChunkingParameters)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
		{name: "zero request timeout", mutate: func(c *Config) { c.Server.RequestTimeout = 0 }, wantErr: "request timeout"},
		{name: "telemetry without service", mutate: func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, wantErr: "service name"},
		{name: "zero match count", mutate: func(c *Config) { c.RAG.MatchCount = 0 }, wantErr: "match count"},
		{name: "zero concurrency", mutate: func(c *Config) { c.RAG.EmbedConcurrency = 0 }, wantErr: "embed concurrency"},
		{name: "unknown store", mutate: func(c *Config) { c.VectorStore.Provider = "pinecone" }, wantErr: "vector store provider"},
		{name: "unknown embeddings", mutate: func(c *Config) { c.Embeddings.Provider = "cohere" }, wantErr: "embeddings provider"},
		{name: "negative rate", mutate: func(c *Config) { c.Embeddings.RateLimit = -1 }, wantErr: "rate limit"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaultsKeepsZeroOverlap(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, chunker.DefaultChunkSize, cfg.RAG.ChunkSize)
	assert.Equal(t, 0, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "supabase", cfg.VectorStore.Provider)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
	require.NoError(t, cfg.Validate())
}

func TestConfig_EmbeddingsAPIKeyFallback(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "gemini-key"
	assert.Equal(t, "gemini-key", cfg.EmbeddingsAPIKey().Value())

	cfg.Embeddings.APIKey = "explicit"
	assert.Equal(t, "explicit", cfg.EmbeddingsAPIKey().Value())
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sb-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "sb-secret", s.Value())

	out, err := json.Marshal(SupabaseConfig{ServiceRoleKey: s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sb-secret")
}

func TestSecret_LiteralValuesAreKept(t *testing.T) {
	var cfg SupabaseConfig
	require.NoError(t, json.Unmarshal([]byte(`{"ServiceRoleKey":"[REDACTED]"}`), &cfg))
	assert.Equal(t, "[REDACTED]", cfg.ServiceRoleKey.Value())
	assert.Equal(t, "config.Secret([REDACTED])", fmt.Sprintf("%#v", cfg.ServiceRoleKey))
	assert.Empty(t, Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{in: "1m30s", want: 90 * time.Second},
		{in: "30", want: 30 * time.Second},
		{in: " 250ms ", want: 250 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		require.NoError(t, d.UnmarshalText([]byte(tt.in)), tt.in)
		assert.Equal(t, tt.want, d.Duration(), tt.in)
	}

	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("-5")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := Duration(2 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2s", string(out))
}
