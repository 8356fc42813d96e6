package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embedding endpoint
// (OpenAI, TEI's /v1 route, vLLM, Ollama).
type OpenAIConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
}

// OpenAIProvider generates embeddings through langchaingo.
type OpenAIProvider struct {
	embedder  *embeddings.EmbedderImpl
	model     string
	dimension int
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: dimension must not be negative", ErrInvalidConfig)
	}

	// Self-hosted servers ignore the key but langchaingo requires one.
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}

	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = openAIModelDimension(cfg.Model)
	}

	return &OpenAIProvider{
		embedder:  embedder,
		model:     cfg.Model,
		dimension: dim,
	}, nil
}

// Embed generates an embedding. Query text goes through EmbedQuery so
// providers with asymmetric models can tell the two apart.
func (p *OpenAIProvider) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if task == TaskQuery {
		vec, err := p.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		return vec, nil
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 {
		return []float32{}, nil
	}
	return vectors[0], nil
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Dimension returns the embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for HTTP providers.
func (p *OpenAIProvider) Close() error {
	return nil
}

func openAIModelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 0
	}
}
