package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var errNoEmbeddingInResponse = errors.New("openai: no embedding in response")

// OpenAIEmbedding calls the OpenAI embeddings API through the official SDK.
type OpenAIEmbedding struct {
	sdk        openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedding creates an OpenAI embeddings client.
func NewOpenAIEmbedding(cfg *EmbeddingConfig) *OpenAIEmbedding {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}

	return &OpenAIEmbedding{
		sdk:        openai.NewClient(opts...),
		model:      model,
		dimensions: cfg.Dimensions,
	}
}

// GetModel returns the model name being used
func (s *OpenAIEmbedding) GetModel() string {
	return s.model
}

// GetDimensions returns the requested vector length.
func (s *OpenAIEmbedding) GetDimensions() int {
	return s.dimensions
}

// Embed generates an embedding for stored feedback.
func (s *OpenAIEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text)
}

// EmbedQuery generates an embedding for a retrieval query. OpenAI models use
// the same representation for passages and queries.
func (s *OpenAIEmbedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text)
}

func (s *OpenAIEmbedding) embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model: openai.EmbeddingModel(s.model),
	}
	if s.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(s.dimensions))
	}

	resp, err := s.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errNoEmbeddingInResponse
	}

	emb := resp.Data[0].Embedding
	if s.dimensions > 0 && len(emb) != s.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(emb), s.dimensions)
	}

	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}

	return out, nil
}
