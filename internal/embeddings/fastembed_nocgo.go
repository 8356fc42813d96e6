//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the gemini or openai provider)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-cgo builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns ErrFastEmbedNotAvailable.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Embed returns ErrFastEmbedNotAvailable.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string, _ TaskType) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Model returns an empty name.
func (p *FastEmbedProvider) Model() string { return "" }

// Dimension returns 0.
func (p *FastEmbedProvider) Dimension() int { return 0 }

// Close is a no-op.
func (p *FastEmbedProvider) Close() error { return nil }
