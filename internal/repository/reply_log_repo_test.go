package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/emoreply/internal/config"
	"github.com/timmy/emoreply/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "data", "replies.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = CloseDB(db) })
	return db
}

func TestReplyLogRepository(t *testing.T) {
	repo := NewReplyLogRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []domain.ReplyLog{
		{ID: "r1", FeedbackText: "love it", DominantEmotion: domain.EmotionJoy, Mode: domain.ReplyModeBlocking, Status: domain.ReplyStatusCompleted, CreatedAt: base},
		{ID: "r2", FeedbackText: "broken", DominantEmotion: domain.EmotionAnger, Mode: domain.ReplyModeStreaming, Status: domain.ReplyStatusFailed, ErrorMessage: "generation failed", CreatedAt: base.Add(time.Minute)},
		{ID: "r3", FeedbackText: "slow", DominantEmotion: domain.EmotionAnger, Mode: domain.ReplyModeBlocking, Status: domain.ReplyStatusCompleted, MatchCount: 3, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		if err := repo.Create(ctx, &rows[i]); err != nil {
			t.Fatalf("Create %s: %v", rows[i].ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  ReplyLogFilter
		limit   int
		offset  int
		wantIDs []string
		total   int64
	}{
		{name: "all newest first", limit: 10, wantIDs: []string{"r3", "r2", "r1"}, total: 3},
		{name: "paginated", limit: 1, offset: 1, wantIDs: []string{"r2"}, total: 3},
		{name: "by emotion", filter: ReplyLogFilter{Emotion: domain.EmotionAnger}, limit: 10, wantIDs: []string{"r3", "r2"}, total: 2},
		{name: "by status", filter: ReplyLogFilter{Status: domain.ReplyStatusFailed}, limit: 10, wantIDs: []string{"r2"}, total: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d rows, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("row %d: expected %s, got %s", i, id, got[i].ID)
				}
			}

			total, err := repo.Count(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if total != tt.total {
				t.Errorf("expected total %d, got %d", tt.total, total)
			}
		})
	}

	got, err := repo.GetByID(ctx, "r3")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MatchCount != 3 || got.Mode != domain.ReplyModeBlocking {
		t.Errorf("unexpected row %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestInitDB_UnknownDriver(t *testing.T) {
	if _, err := InitDB(&config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
