package vectorstore

import (
	"context"
	"sync"
)

// Lazy defers store construction to the first call. Construction runs under
// a mutex so concurrent first calls build exactly one store. A failed build
// is not cached: the next call tries again, which lets credentials added
// after startup take effect.
type Lazy struct {
	build func() (Store, error)

	mu    sync.Mutex
	store Store
}

// NewLazy wraps a store constructor.
func NewLazy(build func() (Store, error)) *Lazy {
	return &Lazy{build: build}
}

// Get returns the store, building it on first use.
func (l *Lazy) Get() (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}
	s, err := l.build()
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

// Ready builds the store if needed and reports construction errors, such as
// ErrConfigurationMissing, without touching any data.
func (l *Lazy) Ready() error {
	_, err := l.Get()
	return err
}

// Upsert implements Store.
func (l *Lazy) Upsert(ctx context.Context, records []Record) error {
	s, err := l.Get()
	if err != nil {
		return err
	}
	return s.Upsert(ctx, records)
}

// SimilaritySearch implements Store.
func (l *Lazy) SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) ([]Match, error) {
	s, err := l.Get()
	if err != nil {
		return nil, err
	}
	return s.SimilaritySearch(ctx, embedding, matchCount)
}

// DeleteByDocID implements Store.
func (l *Lazy) DeleteByDocID(ctx context.Context, docID string, keep ...string) error {
	s, err := l.Get()
	if err != nil {
		return err
	}
	return s.DeleteByDocID(ctx, docID, keep...)
}

// Close closes the underlying store if it was ever built.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}

var _ Store = (*Lazy)(nil)
