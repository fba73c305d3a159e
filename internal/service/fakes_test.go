package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/emoreply/internal/domain"
)

type fakeClassifier struct {
	mu     sync.Mutex
	result domain.EmotionResult
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) domain.EmotionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

type fakeEmbedding struct {
	err error
}

func (f *fakeEmbedding) vector(text string) []float32 {
	return []float32{float32(len(text)) + 1, float32(strings.Count(text, " ")) + 1}
}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.Embed(ctx, text)
}

func (f *fakeEmbedding) GetModel() string   { return "fake" }
func (f *fakeEmbedding) GetDimensions() int { return 2 }

// memoryIndex is an in-memory VectorIndex. When matches is set, Query returns
// it verbatim, ignoring the limit, to exercise the adapter's ordering.
type memoryIndex struct {
	mu          sync.Mutex
	ensureCalls int
	ensureErr   error
	upsertErr   error
	queryErr    error
	matches     []domain.SimilarityMatch
	lastLimit   int
	records     map[string]*domain.FeedbackRecord
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{records: make(map[string]*domain.FeedbackRecord)}
}

func (m *memoryIndex) EnsureCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	return m.ensureErr
}

func (m *memoryIndex) Upsert(ctx context.Context, rec *domain.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, vector []float32, limit int) ([]domain.SimilarityMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.matches != nil {
		return append([]domain.SimilarityMatch(nil), m.matches...), nil
	}

	var out []domain.SimilarityMatch
	for id, rec := range m.records {
		out = append(out, domain.SimilarityMatch{
			ID:      id,
			Score:   1 / (1 + abs32(rec.Vector[0]-vector[0])),
			Text:    rec.Text,
			Emotion: rec.Emotion,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memoryIndex) Count(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.records)), nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// fakeGenerator replays chunks. Complete returns the concatenated content so
// blocking and streaming replies agree.
type fakeGenerator struct {
	chunks      []StreamChunk
	completeErr error
	openErr     error
	streamErr   error // returned after all chunks were delivered

	lastRequest *domain.GenerationRequest
	opened      *sliceChunkStream
}

func (g *fakeGenerator) Complete(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	g.lastRequest = req
	if g.completeErr != nil {
		return "", g.completeErr
	}
	var b strings.Builder
	for _, c := range g.chunks {
		b.WriteString(c.Content)
	}
	return b.String(), nil
}

func (g *fakeGenerator) Stream(ctx context.Context, req *domain.GenerationRequest) (ChunkStream, error) {
	g.lastRequest = req
	if g.openErr != nil {
		return nil, g.openErr
	}
	g.opened = &sliceChunkStream{chunks: g.chunks, tailErr: g.streamErr, idx: -1}
	return g.opened, nil
}

type sliceChunkStream struct {
	chunks  []StreamChunk
	tailErr error
	idx     int
	err     error
	pulls   int
	closed  bool
}

func (s *sliceChunkStream) Next() bool {
	if s.closed {
		s.err = errors.New("read on closed stream")
		return false
	}
	s.pulls++
	s.idx++
	if s.idx >= len(s.chunks) {
		s.err = s.tailErr
		return false
	}
	return true
}

func (s *sliceChunkStream) Chunk() StreamChunk { return s.chunks[s.idx] }
func (s *sliceChunkStream) Err() error         { return s.err }

func (s *sliceChunkStream) Close() error {
	s.closed = true
	return nil
}

func content(parts ...string) []StreamChunk {
	chunks := []StreamChunk{{Role: "assistant"}}
	for _, p := range parts {
		chunks = append(chunks, StreamChunk{Content: p})
	}
	return append(chunks, StreamChunk{FinishReason: "stop"})
}
