package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/timmy/emoreply/internal/domain"
)

func joyResult() domain.EmotionResult {
	return domain.NewEmotionResult(map[domain.Emotion]float64{
		domain.EmotionJoy:   0.9,
		domain.EmotionAnger: 0.01,
	})
}

func TestFeedbackIndex_EnsureCollectionOnce(t *testing.T) {
	idx := newMemoryIndex()
	f := NewFeedbackIndex(idx, &fakeEmbedding{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Store(ctx, "great service", joyResult()); err != nil {
				t.Errorf("Store: %v", err)
			}
			_ = f.Query(ctx, "great", 3)
		}()
	}
	wg.Wait()

	if err := f.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if idx.ensureCalls != 1 {
		t.Errorf("expected one collection check, got %d", idx.ensureCalls)
	}
}

func TestFeedbackIndex_EnsureCollectionRetriesAfterFailure(t *testing.T) {
	idx := newMemoryIndex()
	idx.ensureErr = errors.New("qdrant unavailable")
	f := NewFeedbackIndex(idx, &fakeEmbedding{}, nil)
	ctx := context.Background()

	if err := f.EnsureCollection(ctx); err == nil {
		t.Fatal("expected error")
	}
	idx.ensureErr = nil
	if err := f.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if idx.ensureCalls != 2 {
		t.Errorf("expected a retry after failure, got %d calls", idx.ensureCalls)
	}
}

func TestFeedbackIndex_StoreAssignsFreshIDs(t *testing.T) {
	idx := newMemoryIndex()
	f := NewFeedbackIndex(idx, &fakeEmbedding{}, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := f.Store(ctx, "same text", joyResult())
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}

	if n, _ := f.Count(ctx); n != 5 {
		t.Errorf("expected 5 records, got %d", n)
	}
	for id := range seen {
		rec := idx.records[id]
		if rec.Emotion.DominantEmotion != domain.EmotionJoy || len(rec.Vector) != 2 {
			t.Errorf("unexpected stored record %+v", rec)
		}
	}
}

func TestFeedbackIndex_StoreFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedErr error
		ensure   error
		upsert   error
		wantKind error
	}{
		{name: "embedding", embedErr: errors.New("jina down"), wantKind: ErrEmbeddingFailure},
		{name: "upsert", upsert: errors.New("write refused"), wantKind: ErrIndexFailure},
		{name: "ensure collection", ensure: errors.New("no connection"), wantKind: ErrIndexFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := newMemoryIndex()
			idx.ensureErr = tt.ensure
			idx.upsertErr = tt.upsert
			f := NewFeedbackIndex(idx, &fakeEmbedding{err: tt.embedErr}, nil)

			id, err := f.Store(context.Background(), "text", joyResult())
			if err == nil {
				t.Fatal("expected error")
			}
			if id != "" {
				t.Errorf("expected no id on failure, got %q", id)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("expected %v, got %v", tt.wantKind, err)
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageStoring {
				t.Errorf("expected storing StageError, got %#v", err)
			}
			if len(idx.records) != 0 {
				t.Errorf("expected nothing stored, got %d records", len(idx.records))
			}
		})
	}
}

func TestFeedbackIndex_QueryOrdersAndTruncates(t *testing.T) {
	idx := newMemoryIndex()
	idx.matches = []domain.SimilarityMatch{
		{ID: "a", Score: 0.2, Text: "a"},
		{ID: "b", Score: 0.9, Text: "b"},
		{ID: "c", Score: 0.5, Text: "c"},
		{ID: "d", Score: 0.5, Text: "d"},
		{ID: "e", Score: 0.7, Text: "e"},
	}
	f := NewFeedbackIndex(idx, &fakeEmbedding{}, nil)

	res := f.Query(context.Background(), "query", 3)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	want := []string{"b", "e", "c"}
	if len(res.Matches) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(res.Matches))
	}
	for i, m := range res.Matches {
		if m.ID != want[i] {
			t.Errorf("match %d: expected %s, got %s", i, want[i], m.ID)
		}
		if i > 0 && m.Score > res.Matches[i-1].Score {
			t.Errorf("scores increase at %d", i)
		}
	}
}

func TestFeedbackIndex_QueryLimits(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "unspecified uses default", limit: 0, wantLimit: 3},
		{name: "negative uses default", limit: -4, wantLimit: 3},
		{name: "explicit", limit: 5, wantLimit: 5},
		{name: "clamped to max", limit: 500, wantLimit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := newMemoryIndex()
			f := NewFeedbackIndex(idx, &fakeEmbedding{}, &FeedbackIndexConfig{DefaultLimit: 3, MaxLimit: 10})
			res := f.Query(context.Background(), "q", tt.limit)
			if res.Err != nil {
				t.Fatalf("unexpected error: %v", res.Err)
			}
			if idx.lastLimit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, idx.lastLimit)
			}
		})
	}
}

func TestFeedbackIndex_QueryFailuresAreCarried(t *testing.T) {
	tests := []struct {
		name     string
		embedErr error
		queryErr error
		ensure   error
	}{
		{name: "embedding", embedErr: errors.New("timeout")},
		{name: "index", queryErr: errors.New("collection missing")},
		{name: "ensure", ensure: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := newMemoryIndex()
			idx.ensureErr = tt.ensure
			idx.queryErr = tt.queryErr
			f := NewFeedbackIndex(idx, &fakeEmbedding{err: tt.embedErr}, nil)

			res := f.Query(context.Background(), "q", 3)
			if !errors.Is(res.Err, ErrRetrievalUnavailable) {
				t.Errorf("expected ErrRetrievalUnavailable, got %v", res.Err)
			}
			if res.Matches == nil || len(res.Matches) != 0 {
				t.Errorf("expected empty non-nil matches, got %#v", res.Matches)
			}
		})
	}
}

func TestFeedbackIndex_EmptyIndex(t *testing.T) {
	f := NewFeedbackIndex(newMemoryIndex(), &fakeEmbedding{}, nil)
	res := f.Query(context.Background(), "anything", 3)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Matches == nil || len(res.Matches) != 0 {
		t.Errorf("expected empty matches, got %#v", res.Matches)
	}
}
