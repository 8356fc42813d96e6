// Package rag ingests documents into the vector store and retrieves context
// for tutoring prompts.
//
// Ingestion chunks text, embeds every chunk in document mode with a bounded
// worker pool, then upserts one batch of records. Retrieval embeds the query
// in query mode, runs the store's similarity search and drops malformed
// matches. Empty documents and empty queries never reach the embedder or the
// store.
package rag
