package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/storage"
)

// ReplyLogWriter persists reply audit rows.
// Implemented by repository.ReplyLogRepository.
type ReplyLogWriter interface {
	Create(ctx context.Context, entry *domain.ReplyLog) error
}

// ReplyRecord is one finished reply as seen by the caller.
type ReplyRecord struct {
	ID      string
	Mode    domain.ReplyMode
	Text    string
	Result  *domain.ReplyResult // nil when generation failed before any output
	Err     error
	Started time.Time
}

// replyTranscript is the archived JSON document.
type replyTranscript struct {
	ID         string              `json:"id"`
	Mode       domain.ReplyMode    `json:"mode"`
	Status     domain.ReplyStatus  `json:"status"`
	Error      string              `json:"error,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	CreatedAt  time.Time           `json:"created_at"`
	Result     *domain.ReplyResult `json:"result,omitempty"`
}

// ReplyRecorder writes the audit row and, when storage is configured, a JSON
// transcript. Both are optional; a nil recorder records nothing.
type ReplyRecorder struct {
	logs    ReplyLogWriter
	archive storage.ObjectStorage
	now     func() time.Time
}

// NewReplyRecorder creates a new ReplyRecorder. Either collaborator may be nil.
func NewReplyRecorder(logs ReplyLogWriter, archive storage.ObjectStorage) *ReplyRecorder {
	return &ReplyRecorder{
		logs:    logs,
		archive: archive,
		now:     time.Now,
	}
}

// Record stores rec. Failures are logged and never returned: the reply has
// already been delivered.
func (r *ReplyRecorder) Record(ctx context.Context, rec ReplyRecord) {
	if r == nil || (r.logs == nil && r.archive == nil) {
		return
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "recorder",
		logger.FieldReplyID:   rec.ID,
	})

	now := r.now()
	entry := &domain.ReplyLog{
		ID:           rec.ID,
		FeedbackText: rec.Text,
		Mode:         rec.Mode,
		Status:       replyStatus(rec),
		DurationMs:   now.Sub(rec.Started).Milliseconds(),
		CreatedAt:    now,
	}
	if rec.Result != nil {
		entry.DominantEmotion = rec.Result.DominantEmotion
		entry.Reply = rec.Result.Reply
		entry.MatchCount = len(rec.Result.Matches)
	}
	if rec.Err != nil {
		entry.ErrorMessage = rec.Err.Error()
	}

	if r.archive != nil {
		key, err := r.archiveTranscript(ctx, entry, rec.Result)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to archive reply transcript")
		} else {
			entry.ArchiveKey = key
		}
	}

	if r.logs != nil {
		if err := r.logs.Create(ctx, entry); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to write reply log")
			return
		}
	}

	logger.With(logger.Fields{
		logger.FieldStatus: string(entry.Status),
	}).Debug(ctx, "Reply recorded")
}

func (r *ReplyRecorder) archiveTranscript(ctx context.Context, entry *domain.ReplyLog, result *domain.ReplyResult) (string, error) {
	body, err := json.Marshal(replyTranscript{
		ID:         entry.ID,
		Mode:       entry.Mode,
		Status:     entry.Status,
		Error:      entry.ErrorMessage,
		DurationMs: entry.DurationMs,
		CreatedAt:  entry.CreatedAt,
		Result:     result,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	key := fmt.Sprintf("replies/%s/%s.json", entry.CreatedAt.UTC().Format("2006/01/02"), entry.ID)
	if err := r.archive.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

func replyStatus(rec ReplyRecord) domain.ReplyStatus {
	switch {
	case rec.Err == nil:
		return domain.ReplyStatusCompleted
	case rec.Result != nil && rec.Result.Reply != "":
		return domain.ReplyStatusPartial
	default:
		return domain.ReplyStatusFailed
	}
}
