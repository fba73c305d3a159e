package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/emoreply/internal/domain"
)

func newTestBoltIndex(t *testing.T, dim int) *BoltIndex {
	t.Helper()
	idx, err := NewBoltIndex(filepath.Join(t.TempDir(), "feedback.bolt"), "feedback_emotions", dim)
	if err != nil {
		t.Fatalf("NewBoltIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func record(text string, emotion domain.Emotion, vec ...float32) *domain.FeedbackRecord {
	return &domain.FeedbackRecord{
		ID:        uuid.NewString(),
		Text:      text,
		Emotion:   domain.NewEmotionResult(map[domain.Emotion]float64{emotion: 0.8}),
		Vector:    vec,
		CreatedAt: time.Now(),
	}
}

func TestBoltIndex_EnsureCollectionIdempotent(t *testing.T) {
	idx := newTestBoltIndex(t, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := idx.EnsureCollection(ctx); err != nil {
			t.Fatalf("EnsureCollection #%d: %v", i+1, err)
		}
	}

	if err := idx.Upsert(ctx, record("hello", domain.EmotionJoy, 1, 0)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection after upsert: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected existing records to survive, got count %d", n)
	}
}

func TestBoltIndex_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.bolt")
	ctx := context.Background()

	idx, err := NewBoltIndex(path, "c", 2)
	if err != nil {
		t.Fatalf("NewBoltIndex: %v", err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	idx.Close()

	other, err := NewBoltIndex(path, "c", 3)
	if err != nil {
		t.Fatalf("NewBoltIndex: %v", err)
	}
	defer other.Close()

	if err := other.EnsureCollection(ctx); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestBoltIndex_QueryOrderAndLimit(t *testing.T) {
	idx := newTestBoltIndex(t, 2)
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	records := []*domain.FeedbackRecord{
		record("far", domain.EmotionSadness, 0, 1),
		record("close", domain.EmotionJoy, 1, 0.1),
		record("exact", domain.EmotionAnger, 1, 0),
		record("middle", domain.EmotionFear, 1, 1),
	}
	for _, rec := range records {
		if err := idx.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	tests := []struct {
		name      string
		limit     int
		wantTexts []string
	}{
		{name: "top 1", limit: 1, wantTexts: []string{"exact"}},
		{name: "top 3", limit: 3, wantTexts: []string{"exact", "close", "middle"}},
		{name: "limit above size", limit: 10, wantTexts: []string{"exact", "close", "middle", "far"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := idx.Query(ctx, []float32{1, 0}, tt.limit)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(matches) != len(tt.wantTexts) {
				t.Fatalf("expected %d matches, got %d", len(tt.wantTexts), len(matches))
			}
			for i, m := range matches {
				if m.Text != tt.wantTexts[i] {
					t.Errorf("match %d: expected %q, got %q", i, tt.wantTexts[i], m.Text)
				}
				if i > 0 && m.Score > matches[i-1].Score {
					t.Errorf("scores not non-increasing at %d", i)
				}
			}
		})
	}

	matches, _ := idx.Query(ctx, []float32{1, 0}, 1)
	if matches[0].DominantEmotion() != domain.EmotionAnger {
		t.Errorf("expected payload emotion anger, got %q", matches[0].DominantEmotion())
	}
}

func TestBoltIndex_QueryBeforeEnsureFails(t *testing.T) {
	idx := newTestBoltIndex(t, 2)
	if _, err := idx.Query(context.Background(), []float32{1, 0}, 3); err == nil {
		t.Error("expected error for missing collection")
	}
}

func TestBoltIndex_Delete(t *testing.T) {
	idx := newTestBoltIndex(t, 2)
	ctx := context.Background()
	_ = idx.EnsureCollection(ctx)

	rec := record("bye", domain.EmotionSadness, 0, 1)
	if err := idx.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("expected empty collection, got %d", n)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}
