package source

import (
	"context"

	"github.com/timmy/emoreply/internal/domain"
)

// FeedbackItem represents one piece of past feedback from a data source.
type FeedbackItem struct {
	SourceID string // Unique ID within the source
	Text     string
	// Emotion is set when the source already carries a classification;
	// otherwise the seeder classifies Text.
	Emotion *domain.EmotionResult
}

// Source defines the interface for feedback data sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of feedback items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	//
	// Returns:
	//   - items: batch of feedback items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []FeedbackItem, nextCursor string, err error)
}
