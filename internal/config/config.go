// Package config provides configuration loading for tutorrag.
//
// Configuration is read from environment variables (optionally seeded from a
// .env file) layered over an optional YAML file and hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/tutorrag/internal/chunker"
)

// Config holds the complete tutorrag configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
	Supabase      SupabaseConfig      `koanf:"supabase"`
	Postgres      PostgresConfig      `koanf:"postgres"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Chromem       ChromemConfig       `koanf:"chromem"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Gemini        GeminiConfig        `koanf:"gemini"`
	RAG           RAGConfig           `koanf:"rag"`
	Library       LibraryConfig       `koanf:"library"`
	NATS          NATSConfig          `koanf:"nats"`
	Progress      ProgressConfig      `koanf:"progress"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"` // deadline for each API request
	MaxUpload       string        `koanf:"max_upload"`      // echo body limit, e.g. "20M"
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"otlp_endpoint"`
	Protocol        string  `koanf:"otlp_protocol"`
	Insecure        bool    `koanf:"otlp_insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SupabaseConfig identifies the Supabase project and the vector table.
// VectorTable and MatchFunction are shared with the postgres provider.
type SupabaseConfig struct {
	URL            string   `koanf:"url"`
	ServiceRoleKey Secret   `koanf:"service_role_key"`
	VectorTable    string   `koanf:"vector_table"`
	MatchFunction  string   `koanf:"match_function"`
	Timeout        Duration `koanf:"timeout"`
}

// PostgresConfig configures direct pgvector access.
type PostgresConfig struct {
	DSN      Secret `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
}

// QdrantConfig configures the Qdrant provider.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// ChromemConfig configures the embedded chromem provider.
type ChromemConfig struct {
	Path       string `koanf:"path"` // empty keeps the database in memory
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// VectorStoreConfig selects the vector store provider.
type VectorStoreConfig struct {
	Provider string `koanf:"provider"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst int      `koanf:"rate_burst"`
	CacheDir  string   `koanf:"cache_dir"`
	Timeout   Duration `koanf:"timeout"`
}

// GeminiConfig exists so GEMINI_API_KEY keeps working as a fallback key.
type GeminiConfig struct {
	APIKey Secret `koanf:"api_key"`
}

// RAGConfig tunes chunking and retrieval.
type RAGConfig struct {
	ChunkSize        int `koanf:"chunk_size"`
	ChunkOverlap     int `koanf:"chunk_overlap"`
	MatchCount       int `koanf:"match_count"`
	EmbedConcurrency int `koanf:"embed_concurrency"`
}

// LibraryConfig points at the reference material folders.
type LibraryConfig struct {
	ExercisesDir string   `koanf:"exercises_dir"`
	TestsDir     string   `koanf:"tests_dir"`
	MaxFiles     int      `koanf:"max_files"`
	Watch        bool     `koanf:"watch"`
	SyncOnStart  bool     `koanf:"sync_on_start"`
	Debounce     Duration `koanf:"debounce"`
}

// NATSConfig configures ingestion events. An empty URL disables publishing.
type NATSConfig struct {
	URL          string   `koanf:"url"`
	Subject      string   `koanf:"subject"`
	FlushTimeout Duration `koanf:"flush_timeout"`
}

// ProgressConfig names the node progress table.
type ProgressConfig struct {
	Table string `koanf:"table"`
}

var (
	vectorStoreProviders = []string{"supabase", "postgres", "qdrant", "chromem"}
	embeddingProviders   = []string{"gemini", "openai", "fastembed"}
)

// Default returns a Config populated with defaults. Loading unmarshals over
// it, so explicit zero values (such as RAG_CHUNK_OVERLAP=0) survive.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            9090,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  2 * time.Minute,
			MaxUpload:       "20M",
		},
		Observability: ObservabilityConfig{
			ServiceName: "tutorrag",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Supabase: SupabaseConfig{
			VectorTable:   "documents",
			MatchFunction: "match_documents",
			Timeout:       Duration(30 * time.Second),
		},
		Postgres: PostgresConfig{MaxConns: 8},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "tutorrag_documents",
			VectorSize: 768,
		},
		Chromem:     ChromemConfig{Collection: "documents"},
		VectorStore: VectorStoreConfig{Provider: "supabase"},
		Embeddings: EmbeddingsConfig{
			Provider:  "gemini",
			RateBurst: 1,
			Timeout:   Duration(30 * time.Second),
		},
		RAG: RAGConfig{
			ChunkSize:        chunker.DefaultChunkSize,
			ChunkOverlap:     chunker.DefaultOverlap,
			MatchCount:       4,
			EmbedConcurrency: 4,
		},
		Library: LibraryConfig{
			MaxFiles: 5,
			Debounce: Duration(500 * time.Millisecond),
		},
		NATS: NATSConfig{
			Subject:      "tutorrag.documents.ingested",
			FlushTimeout: Duration(2 * time.Second),
		},
		Progress: ProgressConfig{Table: "node_progress"},
	}
}

// Load loads configuration from environment variables over defaults.
//
// Environment variables split on the first underscore into section and
// field:
//
//	SUPABASE_VECTOR_TABLE -> supabase.vector_table
//	RAG_CHUNK_SIZE        -> rag.chunk_size
//	SERVER_HTTP_PORT      -> server.http_port
func Load() (*Config, error) {
	return load(nil)
}

// ApplyDefaults fills fields whose zero value is never valid.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if c.Server.MaxUpload == "" {
		c.Server.MaxUpload = d.Server.MaxUpload
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Supabase.VectorTable == "" {
		c.Supabase.VectorTable = d.Supabase.VectorTable
	}
	if c.Supabase.MatchFunction == "" {
		c.Supabase.MatchFunction = d.Supabase.MatchFunction
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = d.VectorStore.Provider
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = d.Embeddings.Provider
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = d.RAG.ChunkSize
	}
	if c.RAG.MatchCount == 0 {
		c.RAG.MatchCount = d.RAG.MatchCount
	}
	if c.RAG.EmbedConcurrency == 0 {
		c.RAG.EmbedConcurrency = d.RAG.EmbedConcurrency
	}
	if c.Library.MaxFiles == 0 {
		c.Library.MaxFiles = d.Library.MaxFiles
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = d.NATS.Subject
	}
	if c.NATS.FlushTimeout == 0 {
		c.NATS.FlushTimeout = d.NATS.FlushTimeout
	}
	if c.Progress.Table == "" {
		c.Progress.Table = d.Progress.Table
	}
}

// Validate validates the configuration.
//
// Credentials are not checked here: a missing Supabase key surfaces as a
// configuration error on the first store call, not at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if err := chunker.Validate(c.RAG.ChunkSize, c.RAG.ChunkOverlap); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if c.RAG.MatchCount < 1 {
		return fmt.Errorf("rag: match count must be positive, got %d", c.RAG.MatchCount)
	}
	if c.RAG.EmbedConcurrency < 1 {
		return fmt.Errorf("rag: embed concurrency must be positive, got %d", c.RAG.EmbedConcurrency)
	}
	if !slices.Contains(vectorStoreProviders, c.VectorStore.Provider) {
		return fmt.Errorf("unsupported vector store provider %q (want one of %s)",
			c.VectorStore.Provider, strings.Join(vectorStoreProviders, ", "))
	}
	if !slices.Contains(embeddingProviders, c.Embeddings.Provider) {
		return fmt.Errorf("unsupported embeddings provider %q (want one of %s)",
			c.Embeddings.Provider, strings.Join(embeddingProviders, ", "))
	}
	if c.Embeddings.RateLimit < 0 {
		return errors.New("embeddings rate limit must not be negative")
	}
	if c.Library.MaxFiles < 1 {
		return fmt.Errorf("library: max files must be positive, got %d", c.Library.MaxFiles)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", c.Log.Format)
	}
	return nil
}

// EmbeddingsAPIKey returns EMBEDDINGS_API_KEY, falling back to GEMINI_API_KEY.
func (c *Config) EmbeddingsAPIKey() Secret {
	if c.Embeddings.APIKey.IsSet() {
		return c.Embeddings.APIKey
	}
	return c.Gemini.APIKey
}
