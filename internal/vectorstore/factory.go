package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/config"
)

// NewStore creates the Store selected by cfg.VectorStore.Provider:
//   - "supabase" (default): PostgREST table + match function
//   - "postgres": the same schema over a pgx pool
//   - "qdrant": a Qdrant collection sized to the embedding dimension
//   - "chromem": embedded chromem-go, in memory when no path is set
//
// Missing credentials return ErrConfigurationMissing. Wrap the call in
// NewLazy to report that on first use instead of at startup.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.VectorStore.Provider))

	var (
		store Store
		err   error
	)
	switch cfg.VectorStore.Provider {
	case "supabase", "":
		store, err = unwrap(NewSupabaseStore(SupabaseConfig{
			URL:            cfg.Supabase.URL,
			ServiceRoleKey: cfg.Supabase.ServiceRoleKey.Value(),
			Table:          cfg.Supabase.VectorTable,
			MatchFunction:  cfg.Supabase.MatchFunction,
			Timeout:        cfg.Supabase.Timeout.Duration(),
		}, logger))

	case "postgres":
		store, err = unwrap(NewPostgresStore(ctx, PostgresConfig{
			DSN:           cfg.Postgres.DSN.Value(),
			Table:         cfg.Supabase.VectorTable,
			MatchFunction: cfg.Supabase.MatchFunction,
			MaxConns:      cfg.Postgres.MaxConns,
		}, logger))

	case "qdrant":
		vectorSize := cfg.Qdrant.VectorSize
		if cfg.Embeddings.Dimension > 0 {
			vectorSize = uint64(cfg.Embeddings.Dimension)
		}
		store, err = unwrap(NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: vectorSize,
			UseTLS:     cfg.Qdrant.UseTLS,
		}, logger))

	case "chromem":
		store, err = unwrap(NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
		}, logger))

	default:
		return nil, fmt.Errorf("%w: %q (supported: supabase, postgres, qdrant, chromem)",
			ErrUnknownProvider, cfg.VectorStore.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// unwrap converts a concrete constructor result without leaking a typed nil
// into the Store interface.
func unwrap[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
