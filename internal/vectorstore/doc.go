// Package vectorstore stores chunk embeddings and answers similarity queries.
//
// Four providers implement Store:
//   - supabase (default): PostgREST upsert into a table plus an RPC call to a
//     SQL match function such as match_documents
//   - postgres: the same table and function reached directly through pgx
//   - qdrant: a Qdrant collection over gRPC
//   - chromem: an embedded chromem-go database, in memory or on disk
//
// NewStore picks a provider from configuration. Lazy wraps a constructor so
// the first call, rather than process start, reports missing configuration:
//
//	store := vectorstore.NewLazy(func() (vectorstore.Store, error) {
//	    return vectorstore.NewStore(ctx, cfg, logger)
//	})
//	defer store.Close()
//
// Every provider records Prometheus counters and an OpenTelemetry span per
// operation. No provider retries; callers own retry policy.
package vectorstore
