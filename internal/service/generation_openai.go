package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/timmy/emoreply/internal/domain"
)

// OpenAIGenerator generates replies through the official OpenAI SDK.
type OpenAIGenerator struct {
	sdk         openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator creates a new OpenAIGenerator.
func NewOpenAIGenerator(cfg *GeneratorConfig) *OpenAIGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		sdk:         openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (g *OpenAIGenerator) params(req *domain.GenerationRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(g.temperature),
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(g.maxTokens))
	}
	return params
}

// Complete returns the whole reply.
func (g *OpenAIGenerator) Complete(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	resp, err := g.sdk.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai chat completion: empty completion")
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. The SDK reports connection errors on
// the first read, so the first chunk is fetched here.
func (g *OpenAIGenerator) Stream(ctx context.Context, req *domain.GenerationRequest) (ChunkStream, error) {
	stream := g.sdk.Chat.Completions.NewStreaming(ctx, g.params(req))

	s := &openAIChunkStream{stream: stream}
	if stream.Next() {
		s.pending = true
	} else if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}

	return s, nil
}

type openAIChunkStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	pending bool
	current StreamChunk
}

func (s *openAIChunkStream) Next() bool {
	if s.pending {
		s.pending = false
	} else if !s.stream.Next() {
		return false
	}

	chunk := s.stream.Current()
	s.current = StreamChunk{}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		s.current = StreamChunk{
			Role:         choice.Delta.Role,
			Content:      choice.Delta.Content,
			FinishReason: choice.FinishReason,
		}
	}
	return true
}

func (s *openAIChunkStream) Chunk() StreamChunk {
	return s.current
}

func (s *openAIChunkStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("openai chat stream: %w", err)
	}
	return nil
}

func (s *openAIChunkStream) Close() error {
	return s.stream.Close()
}
