package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/prompts"
)

type replyFixture struct {
	classifier *fakeClassifier
	index      *memoryIndex
	embedder   *fakeEmbedding
	generator  *fakeGenerator
	svc        *ReplyService
}

func newReplyFixture(chunks []StreamChunk) *replyFixture {
	fx := &replyFixture{
		classifier: &fakeClassifier{result: joyResult()},
		index:      newMemoryIndex(),
		embedder:   &fakeEmbedding{},
		generator:  &fakeGenerator{chunks: chunks},
	}
	feedback := NewFeedbackIndex(fx.index, fx.embedder, nil)
	fx.svc = NewReplyService(fx.classifier, feedback, fx.generator, nil)
	return fx
}

func (fx *replyFixture) seed(t *testing.T, texts ...string) {
	t.Helper()
	for _, text := range texts {
		if _, err := fx.svc.Store(context.Background(), text, domain.NewEmotionResult(map[domain.Emotion]float64{
			domain.EmotionSadness: 0.6,
		})); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestGenerateReply_ThrilledCustomerWithEmptyIndex(t *testing.T) {
	fx := newReplyFixture(content("Thank you so much ", "for the kind words!"))

	res, err := fx.svc.GenerateReply(context.Background(), "I am thrilled with the support I received")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}

	if res.DominantEmotion != domain.EmotionJoy {
		t.Errorf("expected joy, got %q", res.DominantEmotion)
	}
	if len(res.Matches) != 0 {
		t.Errorf("expected no matches, got %d", len(res.Matches))
	}
	if res.Reply != "Thank you so much for the kind words!" {
		t.Errorf("unexpected reply %q", res.Reply)
	}

	req := fx.generator.lastRequest
	if req.Examples != prompts.NoSimilarFeedback {
		t.Errorf("expected placeholder example block, got %q", req.Examples)
	}
	if strings.Contains(req.UserPrompt, "Example 1") {
		t.Error("expected no example numbering")
	}
}

func TestGenerateReply_UsesRetrievedExamples(t *testing.T) {
	fx := newReplyFixture(content("We hear you."))
	fx.seed(t, "The app crashed twice today", "Refund took weeks", "Support never replied")

	res, err := fx.svc.GenerateReply(context.Background(), "The app keeps crashing")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}

	if len(res.Matches) != DefaultQueryLimit {
		t.Fatalf("expected %d matches, got %d", DefaultQueryLimit, len(res.Matches))
	}
	req := fx.generator.lastRequest
	if req.ExampleCount != DefaultQueryLimit {
		t.Errorf("expected %d examples, got %d", DefaultQueryLimit, req.ExampleCount)
	}
	if !strings.Contains(req.Examples, "Example 1:\n- Text: "+res.Matches[0].Text) {
		t.Errorf("expected best match first in prompt, got %q", req.Examples)
	}
}

func TestGenerateReply_ClassificationUnavailable(t *testing.T) {
	fx := newReplyFixture(content("Thanks for letting us know."))
	fx.classifier.result = domain.UnknownEmotionResult()

	res, err := fx.svc.GenerateReply(context.Background(), "meh")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if res.DominantEmotion != domain.EmotionUnknown {
		t.Errorf("expected unknown, got %q", res.DominantEmotion)
	}
	if res.Reply == "" {
		t.Error("expected a non-empty reply")
	}
	if !strings.Contains(fx.generator.lastRequest.UserPrompt, "Detected dominant emotion: unknown") {
		t.Error("expected unknown label in prompt")
	}
}

func TestGenerateReply_RetrievalUnavailable(t *testing.T) {
	fx := newReplyFixture(content("Sorry about that."))
	fx.index.queryErr = errors.New("qdrant timeout")

	res, err := fx.svc.GenerateReply(context.Background(), "Order never arrived")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Errorf("expected no matches, got %d", len(res.Matches))
	}
	if res.RetrievalError == "" {
		t.Error("expected carried retrieval error")
	}
	if fx.generator.lastRequest.Examples != prompts.NoSimilarFeedback {
		t.Error("expected placeholder when retrieval failed")
	}
}

func TestGenerateReply_GenerationFailure(t *testing.T) {
	fx := newReplyFixture(nil)
	fx.generator.completeErr = errors.New("model overloaded")

	res, err := fx.svc.GenerateReply(context.Background(), "Where is my refund?")
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("expected ErrGenerationFailure, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageGenerating {
		t.Errorf("expected generating StageError, got %#v", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestStreamReply_ConcatenationMatchesBlocking(t *testing.T) {
	chunks := content("We're ", "", "really sorry ", "about the delay.")
	fx := newReplyFixture(chunks)
	fx.seed(t, "Package was late")
	text := "My package is late again"

	blocking, err := fx.svc.GenerateReply(context.Background(), text)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	blockingReq := *fx.generator.lastRequest

	stream, err := fx.svc.StreamReply(context.Background(), text)
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}
	defer stream.Close()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Fragment())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	for _, f := range fragments {
		if f == "" {
			t.Error("empty fragment yielded")
		}
	}
	if len(fragments) != 3 {
		t.Errorf("expected 3 fragments, got %d: %q", len(fragments), fragments)
	}
	if got := strings.Join(fragments, ""); got != blocking.Reply {
		t.Errorf("stream %q != blocking %q", got, blocking.Reply)
	}
	if stream.Reply() != blocking.Reply {
		t.Errorf("Reply() %q != blocking %q", stream.Reply(), blocking.Reply)
	}
	if *fx.generator.lastRequest != blockingReq {
		t.Error("expected identical generation requests for both modes")
	}
	if stream.DominantEmotion() != blocking.DominantEmotion || len(stream.Matches()) != len(blocking.Matches) {
		t.Error("expected identical pipeline metadata for both modes")
	}
	if stream.Next() {
		t.Error("expected exhausted stream to stay exhausted")
	}
	if !fx.generator.opened.closed {
		t.Error("expected generator stream to be released")
	}
}

func TestStreamReply_OpenFailure(t *testing.T) {
	fx := newReplyFixture(nil)
	fx.generator.openErr = errors.New("401 unauthorized")

	stream, err := fx.svc.StreamReply(context.Background(), "hi")
	if stream != nil {
		t.Error("expected no stream")
	}
	if !errors.Is(err, ErrGenerationFailure) {
		t.Errorf("expected ErrGenerationFailure, got %v", err)
	}
}

func TestStreamReply_MidStreamFailure(t *testing.T) {
	fx := newReplyFixture([]StreamChunk{{Content: "We are "}, {Content: "looking"}})
	fx.generator.streamErr = errors.New("connection reset")

	stream, err := fx.svc.StreamReply(context.Background(), "Checkout broken")
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}
	defer stream.Close()

	var got []string
	for stream.Next() {
		got = append(got, stream.Fragment())
	}

	if strings.Join(got, "") != "We are looking" {
		t.Errorf("expected partial output delivered, got %q", got)
	}
	if !errors.Is(stream.Err(), ErrGenerationFailure) {
		t.Errorf("expected ErrGenerationFailure, got %v", stream.Err())
	}
	if stream.Next() {
		t.Error("expected no fragments after failure")
	}
	if stream.Result().Reply != "We are looking" {
		t.Errorf("expected partial result, got %q", stream.Result().Reply)
	}
}

func TestStreamReply_EmptyCompletionFails(t *testing.T) {
	fx := newReplyFixture(content())

	stream, err := fx.svc.StreamReply(context.Background(), "Where is my parcel?")
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}
	defer stream.Close()

	if stream.Next() {
		t.Fatalf("expected no fragments, got %q", stream.Fragment())
	}
	if !errors.Is(stream.Err(), ErrGenerationFailure) {
		t.Errorf("expected ErrGenerationFailure, got %v", stream.Err())
	}
	if stream.Reply() != "" {
		t.Errorf("expected empty reply, got %q", stream.Reply())
	}
}

func TestStreamReply_ConsumerCancellation(t *testing.T) {
	fx := newReplyFixture(content("one ", "two ", "three"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := fx.svc.StreamReply(ctx, "hello")
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}

	if !stream.Next() || stream.Fragment() != "one " {
		t.Fatalf("expected first fragment, got %q", stream.Fragment())
	}
	pulls := fx.generator.opened.pulls

	cancel()
	if stream.Next() {
		t.Error("expected stream to stop after cancellation")
	}
	if !errors.Is(stream.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", stream.Err())
	}
	if fx.generator.opened.pulls != pulls {
		t.Error("expected no pulls from the generator after cancellation")
	}
	if !fx.generator.opened.closed {
		t.Error("expected generator stream to be closed")
	}
}

func TestStreamReply_AllStopsEarly(t *testing.T) {
	fx := newReplyFixture(content("a", "b", "c"))

	stream, err := fx.svc.StreamReply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}

	var got []string
	for f := range stream.All() {
		got = append(got, f)
		if len(got) == 2 {
			break
		}
	}

	if strings.Join(got, "") != "ab" {
		t.Errorf("unexpected fragments %q", got)
	}
	if !fx.generator.opened.closed {
		t.Error("expected stream closed after iteration stopped")
	}
	if !errors.Is(stream.Err(), ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", stream.Err())
	}
	if stream.Next() {
		t.Error("expected closed stream to yield nothing")
	}
}

func TestClassifyAndStore(t *testing.T) {
	fx := newReplyFixture(nil)

	id, emotion, err := fx.svc.ClassifyAndStore(context.Background(), "Love the new update")
	if err != nil {
		t.Fatalf("ClassifyAndStore: %v", err)
	}
	if id == "" || emotion.DominantEmotion != domain.EmotionJoy {
		t.Errorf("unexpected result id=%q emotion=%q", id, emotion.DominantEmotion)
	}

	res := fx.svc.QuerySimilar(context.Background(), "Love the new update", 0)
	if res.Err != nil || len(res.Matches) != 1 || res.Matches[0].ID != id {
		t.Errorf("expected stored record to be retrievable, got %+v", res)
	}
}
