// Package embeddings turns text into vectors through a pluggable provider.
//
// Providers (Gemini, OpenAI-compatible via langchaingo, local FastEmbed) implement
// Provider. Embedder wraps a provider with the behaviour every caller relies on:
// whitespace-only input yields an empty vector without a provider call, an
// optional rate limit is applied, and a provider that returns no vector fails
// with ErrEmbeddingUnavailable.
//
// Document and query text are embedded with different task types because the
// retrieval models bias the vector space by intent.
package embeddings
