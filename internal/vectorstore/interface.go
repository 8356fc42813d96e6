package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrConfigurationMissing is returned on first use of a store whose
	// connection target or credential is unset.
	ErrConfigurationMissing = errors.New("vector store configuration missing")

	// ErrInvalidConfig indicates configuration that is present but unusable.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownProvider is returned by NewStore for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown vector store provider")
)

// Record is one persisted chunk row.
type Record struct {
	ID        string         `json:"id"`
	DocID     string         `json:"doc_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// Match is one similarity search result as returned by the store. Providers
// set at least "content"; most also set "id", "doc_id", "metadata" and
// "similarity". A nil Match marks a result row that was not a JSON object.
type Match map[string]any

// Content returns the match's content field when it is a string.
func (m Match) Content() (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m["content"].(string)
	return s, ok
}

// Store persists chunk records and answers nearest-neighbor queries.
type Store interface {
	// Upsert writes records as one batch, replacing rows with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// SimilaritySearch returns up to matchCount records ranked by similarity
	// to embedding. Ranking is entirely the store's responsibility.
	SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) ([]Match, error)

	// DeleteByDocID removes every record belonging to a document except
	// those whose ID is in keep.
	DeleteByDocID(ctx context.Context, docID string, keep ...string) error

	// Close releases connections held by the store.
	Close() error
}
