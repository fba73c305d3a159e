package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultJinaBaseURL = "https://api.jina.ai/v1"

	jinaTaskPassage = "retrieval.passage"
	jinaTaskQuery   = "retrieval.query"
)

// EmbeddingProvider maps text to a fixed-length vector. Embed is used for
// stored feedback and EmbedQuery for retrieval queries.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	GetModel() string
	GetDimensions() int
}

// EmbeddingConfig holds configuration for embedding service
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
}

// NewEmbeddingProvider builds the configured provider, wrapped in a query
// cache when CacheSize is positive.
func NewEmbeddingProvider(cfg *EmbeddingConfig) (EmbeddingProvider, error) {
	var provider EmbeddingProvider
	switch cfg.Provider {
	case "jina", "":
		provider = NewJinaEmbedding(cfg)
	case "openai":
		provider = NewOpenAIEmbedding(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedding(provider, cfg.CacheSize)
	}
	return provider, nil
}

// JinaEmbedding calls the Jina embeddings API.
type JinaEmbedding struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewJinaEmbedding creates a new Jina embedding client
func NewJinaEmbedding(cfg *EmbeddingConfig) *JinaEmbedding {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultJinaBaseURL
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &JinaEmbedding{
		client:     client,
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// GetModel returns the model name being used
func (s *JinaEmbedding) GetModel() string {
	return s.model
}

// GetDimensions returns the vector length produced by the model.
func (s *JinaEmbedding) GetDimensions() int {
	return s.dimensions
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// Embed generates a passage embedding for stored feedback.
func (s *JinaEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, jinaTaskPassage, text)
}

// EmbedQuery generates an embedding optimized for query/search
func (s *JinaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.embed(ctx, jinaTaskQuery, query)
}

func (s *JinaEmbedding) embed(ctx context.Context, task, text string) ([]float32, error) {
	req := jinaRequest{
		Model:         s.model,
		Task:          task,
		Dimensions:    s.dimensions,
		Input:         []string{text},
		EmbeddingType: "float",
	}

	var resp jinaResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("Jina API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("Jina API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	embedding := resp.Data[0].Embedding
	if s.dimensions > 0 && len(embedding) != s.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.dimensions)
	}

	return embedding, nil
}
