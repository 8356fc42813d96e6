package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider call itself failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrEmbeddingUnavailable indicates the provider answered without a vector
	// for non-empty input.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// TaskType is the usage intent passed to the provider.
type TaskType string

const (
	// TaskDocument embeds text that will be stored and searched.
	TaskDocument TaskType = "document"
	// TaskQuery embeds text used to search stored documents.
	TaskQuery TaskType = "query"
)

// Provider generates a single embedding for a task type.
type Provider interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
	// Model returns the model identifier used for metrics and logs.
	Model() string
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "gemini" (default), "openai" or "fastembed".
	Provider string
	Model    string
	// BaseURL overrides the API endpoint (gemini, openai).
	BaseURL string
	APIKey  string
	// Dimension is the expected vector size; 0 uses the model default.
	Dimension int
	Timeout   time.Duration
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiProvider(GeminiConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
