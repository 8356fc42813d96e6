package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultGeminiBaseURL is the Generative Language API root.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel is the multilingual text embedding model.
	DefaultGeminiModel = "models/text-embedding-004"

	defaultGeminiDimension = 768
	defaultGeminiTimeout   = 30 * time.Second
	maxErrorBody           = 4096
)

// geminiTaskTypes maps task types to the API's enum names.
var geminiTaskTypes = map[TaskType]string{
	TaskDocument: "RETRIEVAL_DOCUMENT",
	TaskQuery:    "RETRIEVAL_QUERY",
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// ApplyDefaults fills unset fields.
func (c *GeminiConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGeminiBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultGeminiModel
	}
	if !strings.HasPrefix(c.Model, "models/") {
		c.Model = "models/" + c.Model
	}
	if c.Dimension == 0 {
		c.Dimension = defaultGeminiDimension
	}
	if c.Timeout == 0 {
		c.Timeout = defaultGeminiTimeout
	}
}

// Validate validates the configuration.
func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: gemini API key required", ErrInvalidConfig)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension must not be negative", ErrInvalidConfig)
	}
	return nil
}

// GeminiProvider calls the embedContent endpoint.
type GeminiProvider struct {
	config GeminiConfig
	client *http.Client
}

// NewGeminiProvider creates a Gemini embedding provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &GeminiProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiResponse struct {
	Embedding *struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Embed generates an embedding for text. A response without values returns
// an empty vector and no error; Embedder turns that into ErrEmbeddingUnavailable.
func (p *GeminiProvider) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	body, err := json.Marshal(geminiRequest{
		Model:    p.config.Model,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: geminiTaskTypes[task],
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/" + p.config.Model + ":embedContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr geminiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Embedding == nil {
		return []float32{}, nil
	}
	return out.Embedding.Values, nil
}

// Model returns the configured model name.
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

// Dimension returns the configured embedding dimension.
func (p *GeminiProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op since the provider only holds an HTTP client.
func (p *GeminiProvider) Close() error {
	return nil
}
