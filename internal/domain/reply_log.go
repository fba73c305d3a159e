package domain

import "time"

// ReplyStatus is the outcome recorded for a reply.
type ReplyStatus string

const (
	ReplyStatusCompleted ReplyStatus = "completed"
	ReplyStatusFailed    ReplyStatus = "failed"
	ReplyStatusPartial   ReplyStatus = "partial"
)

// ReplyLog is the audit row written by callers after a reply was produced.
type ReplyLog struct {
	ID              string      `gorm:"type:text;primaryKey" json:"id"`
	FeedbackText    string      `gorm:"type:text;not null" json:"feedback_text"`
	DominantEmotion Emotion     `gorm:"type:text;index" json:"dominant_emotion"`
	Reply           string      `gorm:"type:text" json:"reply"`
	Mode            ReplyMode   `gorm:"type:text;not null" json:"mode"`
	Status          ReplyStatus `gorm:"type:text;not null;index" json:"status"`
	MatchCount      int         `gorm:"default:0" json:"match_count"`
	ErrorMessage    string      `gorm:"type:text" json:"error,omitempty"`
	DurationMs      int64       `json:"duration_ms"`
	ArchiveKey      string      `gorm:"type:text" json:"archive_key,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TableName returns the database table name for ReplyLog.
func (ReplyLog) TableName() string {
	return "reply_logs"
}
