package repository

import (
	"context"

	"github.com/timmy/emoreply/internal/domain"
	"gorm.io/gorm"
)

// ReplyLogRepository persists the reply audit log.
type ReplyLogRepository struct {
	db *gorm.DB
}

// NewReplyLogRepository creates a new ReplyLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *ReplyLogRepository: repository instance bound to db.
func NewReplyLogRepository(db *gorm.DB) *ReplyLogRepository {
	return &ReplyLogRepository{db: db}
}

// Create inserts a new reply log row.
func (r *ReplyLogRepository) Create(ctx context.Context, entry *domain.ReplyLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetByID retrieves a reply log row by its ID.
// Returns gorm.ErrRecordNotFound when no row matches.
func (r *ReplyLogRepository) GetByID(ctx context.Context, id string) (*domain.ReplyLog, error) {
	var entry domain.ReplyLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReplyLogFilter narrows List and Count.
type ReplyLogFilter struct {
	Emotion domain.Emotion
	Status  domain.ReplyStatus
}

func (f ReplyLogFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Emotion != "" {
		q = q.Where("dominant_emotion = ?", f.Emotion)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// List returns reply log rows, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional emotion and status filters.
//   - limit: maximum number of rows to return.
//   - offset: number of rows to skip.
//
// Returns:
//   - []domain.ReplyLog: matching rows.
//   - error: non-nil if the query fails.
func (r *ReplyLogRepository) List(ctx context.Context, filter ReplyLogFilter, limit, offset int) ([]domain.ReplyLog, error) {
	var entries []domain.ReplyLog
	q := filter.apply(r.db.WithContext(ctx).Model(&domain.ReplyLog{}))
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

// Count returns the number of rows matching filter.
func (r *ReplyLogRepository) Count(ctx context.Context, filter ReplyLogFilter) (int64, error) {
	var count int64
	err := filter.apply(r.db.WithContext(ctx).Model(&domain.ReplyLog{})).Count(&count).Error
	return count, err
}
