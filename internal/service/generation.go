package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/emoreply/internal/domain"
)

const defaultGenerationTimeout = 60 * time.Second

// StreamChunk is one event from a streaming completion. Content is empty for
// role-only and finish events.
type StreamChunk struct {
	Role         string
	Content      string
	FinishReason string
}

// ChunkStream is a forward-only sequence of completion chunks. Next blocks
// until a chunk is available and returns false at the end or on error.
type ChunkStream interface {
	Next() bool
	Chunk() StreamChunk
	Err() error
	Close() error
}

// Generator produces replies from a rendered generation request.
type Generator interface {
	Complete(ctx context.Context, req *domain.GenerationRequest) (string, error)
	Stream(ctx context.Context, req *domain.GenerationRequest) (ChunkStream, error)
}

// GeneratorConfig holds configuration for the text generation client.
type GeneratorConfig struct {
	Provider    string // openai, openai-compatible
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewGenerator builds the configured generation client.
func NewGenerator(cfg *GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIGenerator(cfg), nil
	case "openai-compatible":
		return NewCompatibleGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}

// CompatibleGenerator talks to any OpenAI-compatible chat completions API
// over plain HTTP, parsing the SSE stream itself.
type CompatibleGenerator struct {
	client      *resty.Client
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// NewCompatibleGenerator creates a new CompatibleGenerator.
func NewCompatibleGenerator(cfg *GeneratorConfig) *CompatibleGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &CompatibleGenerator{
		client:      client,
		httpClient:  newStreamingHTTPClient(timeout),
		endpoint:    strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// newStreamingHTTPClient bounds the wait for response headers only. A
// whole-request timeout would cut off long but healthy streams; the body is
// bounded by the request context instead.
func newStreamingHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (g *CompatibleGenerator) request(req *domain.GenerationRequest, stream bool) chatRequest {
	return chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      stream,
	}
}

// Complete returns the whole reply.
func (g *CompatibleGenerator) Complete(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	var resp chatResponse
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(g.request(req, false)).
		SetResult(&resp).
		SetError(&resp).
		Post(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call LLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil && resp.Error.Message != "" {
			return "", fmt.Errorf("LLM API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("LLM API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("LLM API returned an empty completion")
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. Errors before the first byte of the
// stream are returned here; later errors surface through ChunkStream.Err.
func (g *CompatibleGenerator) Stream(ctx context.Context, req *domain.GenerationRequest) (ChunkStream, error) {
	reqBody, err := json.Marshal(g.request(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call LLM API: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiResp chatResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil && apiResp.Error.Message != "" {
			return nil, fmt.Errorf("LLM API error: %s", apiResp.Error.Message)
		}
		return nil, fmt.Errorf("LLM API error: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseChunkStream{body: resp.Body, scanner: scanner}, nil
}

// sseChunkStream reads "data: " lines of a chat completions event stream.
type sseChunkStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current StreamChunk
	err     error
	done    bool
}

func (s *sseChunkStream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return false
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			s.err = fmt.Errorf("malformed LLM stream event: %w", err)
			s.done = true
			return false
		}
		if delta.Error != nil {
			s.err = fmt.Errorf("LLM stream error: %s", delta.Error.Message)
			s.done = true
			return false
		}
		if len(delta.Choices) == 0 {
			continue
		}

		choice := delta.Choices[0]
		s.current = StreamChunk{
			Role:    choice.Delta.Role,
			Content: choice.Delta.Content,
		}
		if choice.FinishReason != nil {
			s.current.FinishReason = *choice.FinishReason
		}
		return true
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("failed to read LLM stream: %w", err)
	}
	return false
}

func (s *sseChunkStream) Chunk() StreamChunk {
	return s.current
}

func (s *sseChunkStream) Err() error {
	return s.err
}

func (s *sseChunkStream) Close() error {
	s.done = true
	return s.body.Close()
}
