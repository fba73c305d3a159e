package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
)

const (
	DefaultQueryLimit = 3
	defaultMaxLimit   = 20
)

// VectorIndex is the storage collaborator behind FeedbackIndex.
// Implemented by repository.QdrantRepository and repository.BoltIndex.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, rec *domain.FeedbackRecord) error
	Query(ctx context.Context, vector []float32, limit int) ([]domain.SimilarityMatch, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (uint64, error)
}

// QueryResult carries matches and, when retrieval failed, the reason.
// Matches is empty (never nil) on failure.
type QueryResult struct {
	Matches []domain.SimilarityMatch
	Err     error
}

// FeedbackIndexConfig holds retrieval limits.
type FeedbackIndexConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// FeedbackIndex stores classified feedback and answers similarity queries.
type FeedbackIndex struct {
	index        VectorIndex
	embedder     EmbeddingProvider
	defaultLimit int
	maxLimit     int

	ensureMu sync.Mutex
	ready    atomic.Bool
}

// NewFeedbackIndex creates a new FeedbackIndex.
func NewFeedbackIndex(index VectorIndex, embedder EmbeddingProvider, cfg *FeedbackIndexConfig) *FeedbackIndex {
	f := &FeedbackIndex{
		index:        index,
		embedder:     embedder,
		defaultLimit: DefaultQueryLimit,
		maxLimit:     defaultMaxLimit,
	}
	if cfg != nil {
		if cfg.DefaultLimit > 0 {
			f.defaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			f.maxLimit = cfg.MaxLimit
		}
	}
	if f.maxLimit < f.defaultLimit {
		f.maxLimit = f.defaultLimit
	}
	return f
}

// EnsureCollection creates the collection on first use. After one success it
// is a no-op; a failure is retried by the next caller.
func (f *FeedbackIndex) EnsureCollection(ctx context.Context) error {
	if f.ready.Load() {
		return nil
	}

	f.ensureMu.Lock()
	defer f.ensureMu.Unlock()
	if f.ready.Load() {
		return nil
	}

	if err := f.index.EnsureCollection(ctx); err != nil {
		return err
	}
	f.ready.Store(true)
	return nil
}

// Store embeds text and upserts it with its emotion under a fresh ID.
// Failures are returned as *StageError with ErrEmbeddingFailure or ErrIndexFailure.
func (f *FeedbackIndex) Store(ctx context.Context, text string, emotion domain.EmotionResult) (string, error) {
	start := time.Now()

	if err := f.EnsureCollection(ctx); err != nil {
		return "", newStageError(domain.StageStoring, ErrIndexFailure, fmt.Errorf("ensure collection: %w", err))
	}

	vector, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return "", newStageError(domain.StageStoring, ErrEmbeddingFailure, err)
	}

	rec := &domain.FeedbackRecord{
		ID:        uuid.NewString(),
		Text:      text,
		Emotion:   emotion.Normalize(),
		Vector:    vector,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.index.Upsert(ctx, rec); err != nil {
		return "", newStageError(domain.StageStoring, ErrIndexFailure, err)
	}

	logger.With(logger.Fields{
		logger.FieldFeedbackID: rec.ID,
		"dominant_emotion":     rec.Emotion.DominantEmotion,
	}).WithDuration(start).Info(ctx, "Stored feedback")

	return rec.ID, nil
}

// Query returns up to limit records similar to text, best first. A limit of
// zero or less selects the default; limits above the maximum are clamped.
// Failures are carried in QueryResult.Err, wrapping ErrRetrievalUnavailable.
func (f *FeedbackIndex) Query(ctx context.Context, text string, limit int) QueryResult {
	limit = f.effectiveLimit(limit)

	matches, err := f.query(ctx, text, limit)
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldComponent: "feedback_index",
			"error":               err.Error(),
		}).Warn(ctx, "Retrieval unavailable, continuing without similar feedback")
		return QueryResult{
			Matches: []domain.SimilarityMatch{},
			Err:     newStageError(domain.StageRetrieving, ErrRetrievalUnavailable, err),
		}
	}

	return QueryResult{Matches: matches}
}

func (f *FeedbackIndex) query(ctx context.Context, text string, limit int) ([]domain.SimilarityMatch, error) {
	if err := f.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	vector, err := f.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
	}

	matches, err := f.index.Query(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexFailure, err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []domain.SimilarityMatch{}
	}
	return matches, nil
}

// Delete removes a stored record.
func (f *FeedbackIndex) Delete(ctx context.Context, id string) error {
	if err := f.EnsureCollection(ctx); err != nil {
		return newStageError(domain.StageStoring, ErrIndexFailure, err)
	}
	if err := f.index.Delete(ctx, id); err != nil {
		return newStageError(domain.StageStoring, ErrIndexFailure, err)
	}
	return nil
}

// Count returns the number of stored records.
func (f *FeedbackIndex) Count(ctx context.Context) (uint64, error) {
	if err := f.EnsureCollection(ctx); err != nil {
		return 0, newStageError(domain.StageStoring, ErrIndexFailure, err)
	}
	n, err := f.index.Count(ctx)
	if err != nil {
		return 0, newStageError(domain.StageStoring, ErrIndexFailure, err)
	}
	return n, nil
}

// DefaultLimit returns the limit used when a caller does not specify one.
func (f *FeedbackIndex) DefaultLimit() int {
	return f.defaultLimit
}

func (f *FeedbackIndex) effectiveLimit(limit int) int {
	if limit <= 0 {
		return f.defaultLimit
	}
	if limit > f.maxLimit {
		return f.maxLimit
	}
	return limit
}
