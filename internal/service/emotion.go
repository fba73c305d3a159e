package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
)

const (
	modelIDHeader            = "grpc-metadata-mm-model-id"
	defaultClassifierTimeout = 10 * time.Second
)

// errRejectedInput marks a 4xx from the classifier. It is a failure for the
// caller but not for the breaker: blank or unsupported text is not an outage.
var errRejectedInput = errors.New("classifier rejected input")

// EmotionClassifier labels text with emotion intensities. Implementations
// never fail: any error becomes domain.UnknownEmotionResult().
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) domain.EmotionResult
}

// EmotionConfig holds configuration for the emotion classification client.
type EmotionConfig struct {
	URL     string
	ModelID string
	Timeout time.Duration

	BreakerEnabled      bool
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// EmotionService calls a Watson-style EmotionPredict endpoint.
type EmotionService struct {
	client  *resty.Client
	url     string
	breaker *gobreaker.CircuitBreaker
}

type emotionPredictRequest struct {
	RawDocument struct {
		Text string `json:"text"`
	} `json:"raw_document"`
}

type emotionPredictResponse struct {
	EmotionPredictions []struct {
		Emotion map[string]float64 `json:"emotion"`
	} `json:"emotionPredictions"`
}

// NewEmotionService creates a new emotion classification client.
func NewEmotionService(cfg *EmotionConfig) *EmotionService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.ModelID != "" {
		client.SetHeader(modelIDHeader, cfg.ModelID)
	}

	s := &EmotionService{
		client: client,
		url:    cfg.URL,
	}

	if cfg.BreakerEnabled {
		threshold := cfg.ConsecutiveFailures
		if threshold == 0 {
			threshold = 5
		}
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "emotion-classifier",
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errRejectedInput)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.With(logger.Fields{
					logger.FieldComponent: name,
					"from":                from.String(),
					"to":                  to.String(),
				}).Warn(context.Background(), "Circuit breaker state changed")
			},
		})
	}

	return s
}

// Classify returns the emotion result for text, or the unknown result when the
// classifier is unavailable.
func (s *EmotionService) Classify(ctx context.Context, text string) domain.EmotionResult {
	result, err := s.Predict(ctx, text)
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldComponent: "emotion",
			"error":               err.Error(),
		}).Warn(ctx, "Emotion classification unavailable, using unknown result")
		return domain.UnknownEmotionResult()
	}
	return result
}

// Predict calls the classifier and reports failures. Every returned error
// wraps ErrClassificationUnavailable.
func (s *EmotionService) Predict(ctx context.Context, text string) (domain.EmotionResult, error) {
	var (
		result domain.EmotionResult
		err    error
	)

	if s.breaker == nil {
		result, err = s.predict(ctx, text)
	} else {
		var out interface{}
		out, err = s.breaker.Execute(func() (interface{}, error) {
			return s.predict(ctx, text)
		})
		if r, ok := out.(domain.EmotionResult); ok {
			result = r
		}
	}

	if err != nil {
		return domain.UnknownEmotionResult(), fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)
	}
	return result, nil
}

func (s *EmotionService) predict(ctx context.Context, text string) (domain.EmotionResult, error) {
	var body emotionPredictRequest
	body.RawDocument.Text = text

	var resp emotionPredictResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		Post(s.url)
	if err != nil {
		return domain.EmotionResult{}, fmt.Errorf("failed to call classifier: %w", err)
	}

	status := httpResp.StatusCode()
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return domain.EmotionResult{}, fmt.Errorf("%w: status %d", errRejectedInput, status)
	}
	if !httpResp.IsSuccess() {
		return domain.EmotionResult{}, fmt.Errorf("classifier error: status %d", status)
	}

	if len(resp.EmotionPredictions) == 0 || len(resp.EmotionPredictions[0].Emotion) == 0 {
		return domain.EmotionResult{}, fmt.Errorf("classifier returned no emotion predictions")
	}

	scores := make(map[domain.Emotion]float64, len(resp.EmotionPredictions[0].Emotion))
	for label, v := range resp.EmotionPredictions[0].Emotion {
		scores[domain.Emotion(label)] = v
	}

	result := domain.NewEmotionResult(scores)
	if !result.IsKnown() {
		return domain.EmotionResult{}, fmt.Errorf("classifier returned no recognized labels")
	}
	return result, nil
}
