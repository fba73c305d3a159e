package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/source"
)

const (
	defaultSeedWorkers   = 4
	defaultSeedBatchSize = 50
)

// SeedConfig holds configuration for the seed service.
type SeedConfig struct {
	Workers   int
	BatchSize int
}

// SeedService loads past feedback from a source into the feedback index.
type SeedService struct {
	classifier EmotionClassifier
	index      *FeedbackIndex
	workers    int
	batchSize  int
}

// NewSeedService creates a new seed service.
func NewSeedService(classifier EmotionClassifier, index *FeedbackIndex, cfg *SeedConfig) *SeedService {
	s := &SeedService{
		classifier: classifier,
		index:      index,
		workers:    defaultSeedWorkers,
		batchSize:  defaultSeedBatchSize,
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			s.workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			s.batchSize = cfg.BatchSize
		}
	}
	return s
}

// SeedStats holds statistics for a seed run.
type SeedStats struct {
	Total     int64     `json:"total"`
	Stored    int64     `json:"stored"`
	Skipped   int64     `json:"skipped"`
	Failed    int64     `json:"failed"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// SeedOptions holds options for a seed run.
type SeedOptions struct {
	// Limit caps the number of items read from the source. Zero reads all.
	Limit int
	// OnItem is called once per processed item, from the collector goroutine.
	OnItem func(SeedItemResult)
}

// SeedItemResult describes the outcome for one source item.
type SeedItemResult struct {
	SourceID string
	ID       string
	Emotion  domain.Emotion
	Skipped  bool
	Err      error
}

// SeedFromSource classifies and stores every item of src. Items with empty
// text are skipped. Per-item failures are counted, not returned; the error is
// non-nil only when the source cannot be read at all.
func (s *SeedService) SeedFromSource(ctx context.Context, src source.Source, opts *SeedOptions) (*SeedStats, error) {
	if opts == nil {
		opts = &SeedOptions{}
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "seed",
		logger.FieldSource:    src.GetSourceID(),
	})

	stats := &SeedStats{
		StartTime: time.Now(),
	}

	logger.CtxInfo(ctx, "Starting seed: limit=%d, workers=%d", opts.Limit, s.workers)

	itemsChan := make(chan source.FeedbackItem, s.workers*2)
	resultsChan := make(chan SeedItemResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, itemsChan, resultsChan)
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			switch {
			case result.Skipped:
				atomic.AddInt64(&stats.Skipped, 1)
			case result.Err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				logger.FromContext(ctx).WithField("source_id", result.SourceID).
					WithError(result.Err).Error("Failed to seed item")
			default:
				atomic.AddInt64(&stats.Stored, 1)
			}
			if opts.OnItem != nil {
				opts.OnItem(result)
			}
		}
		close(done)
	}()

	fetchErr := s.dispatch(ctx, src, opts.Limit, itemsChan, stats)

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()

	entry := logger.With(logger.Fields{
		"total":   stats.Total,
		"stored":  stats.Stored,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
	}).WithDuration(stats.StartTime)
	if fetchErr != nil {
		entry.Error(ctx, "Seed aborted: %v", fetchErr)
		return stats, fetchErr
	}
	entry.Info(ctx, "Seed completed")

	return stats, nil
}

// dispatch pages through src and feeds items to the workers.
func (s *SeedService) dispatch(ctx context.Context, src source.Source, limit int, items chan<- source.FeedbackItem, stats *SeedStats) error {
	cursor := ""
	fetched := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchLimit := s.batchSize
		if limit > 0 {
			remaining := limit - fetched
			if remaining <= 0 {
				return nil
			}
			if batchLimit > remaining {
				batchLimit = remaining
			}
		}

		batch, nextCursor, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		atomic.AddInt64(&stats.Total, int64(len(batch)))
		fetched += len(batch)

		for _, item := range batch {
			select {
			case items <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if nextCursor == "" {
			return nil
		}
		cursor = nextCursor
	}
}

func (s *SeedService) worker(ctx context.Context, items <-chan source.FeedbackItem, results chan<- SeedItemResult) {
	for item := range items {
		results <- s.seedItem(ctx, item)
	}
}

func (s *SeedService) seedItem(ctx context.Context, item source.FeedbackItem) SeedItemResult {
	result := SeedItemResult{SourceID: item.SourceID}

	text := strings.TrimSpace(item.Text)
	if text == "" {
		result.Skipped = true
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	var emotion domain.EmotionResult
	if item.Emotion != nil {
		emotion = item.Emotion.Normalize()
	} else {
		emotion = s.classifier.Classify(ctx, text)
	}
	result.Emotion = emotion.DominantEmotion

	id, err := s.index.Store(ctx, text, emotion)
	if err != nil {
		result.Err = err
		return result
	}
	result.ID = id
	return result
}
