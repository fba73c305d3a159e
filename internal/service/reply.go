package service

import (
	"context"
	"time"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/prompts"
)

// ReplyConfig holds orchestrator settings.
type ReplyConfig struct {
	// RetrievalLimit is the number of similar records put into the prompt.
	// Zero uses the index default.
	RetrievalLimit int
}

// ReplyService sequences classification, retrieval, prompt assembly and
// generation for a single piece of feedback. It holds no per-request state.
type ReplyService struct {
	classifier     EmotionClassifier
	index          *FeedbackIndex
	generator      Generator
	retrievalLimit int
}

// NewReplyService creates a new ReplyService.
func NewReplyService(classifier EmotionClassifier, index *FeedbackIndex, generator Generator, cfg *ReplyConfig) *ReplyService {
	s := &ReplyService{
		classifier: classifier,
		index:      index,
		generator:  generator,
	}
	if cfg != nil {
		s.retrievalLimit = cfg.RetrievalLimit
	}
	return s
}

// preparedReply is the output of the shared classify, retrieve, assemble stages.
type preparedReply struct {
	text      string
	emotion   domain.EmotionResult
	retrieval QueryResult
	request   *domain.GenerationRequest
}

func (p *preparedReply) result(reply string) *domain.ReplyResult {
	res := &domain.ReplyResult{
		Text:            p.text,
		DominantEmotion: p.request.DominantEmotion,
		Emotion:         p.emotion,
		Reply:           reply,
		Matches:         p.retrieval.Matches,
	}
	if p.retrieval.Err != nil {
		res.RetrievalError = p.retrieval.Err.Error()
	}
	return res
}

func (s *ReplyService) prepare(ctx context.Context, text string) *preparedReply {
	start := time.Now()
	logStage(domain.StageClassifying).Debug(ctx, "Classifying feedback")
	emotion := s.classifier.Classify(ctx, text)
	logStage(domain.StageClassifying).With(logger.Fields{
		"dominant_emotion": emotion.DominantEmotion,
	}).WithDuration(start).Info(ctx, "Classification finished")

	start = time.Now()
	retrieval := s.index.Query(ctx, text, s.retrievalLimit)
	entry := logStage(domain.StageRetrieving).WithCount(len(retrieval.Matches)).WithDuration(start)
	if retrieval.Err != nil {
		entry = entry.With(logger.Fields{"retrieval_error": retrieval.Err.Error()})
	}
	entry.Info(ctx, "Retrieval finished")

	request := prompts.Assemble(text, emotion.DominantEmotion, retrieval.Matches)
	logStage(domain.StageAssembling).With(logger.Fields{
		"example_count": request.ExampleCount,
	}).Debug(ctx, "Prompt assembled")

	return &preparedReply{
		text:      text,
		emotion:   emotion,
		retrieval: retrieval,
		request:   request,
	}
}

// GenerateReply runs the pipeline and returns the whole reply. Classification
// and retrieval failures are absorbed; a generation failure is returned as a
// *StageError wrapping ErrGenerationFailure.
func (s *ReplyService) GenerateReply(ctx context.Context, text string) (*domain.ReplyResult, error) {
	ctx = logger.WithField(ctx, logger.FieldMode, string(domain.ReplyModeBlocking))
	started := time.Now()

	prepared := s.prepare(ctx, text)

	start := time.Now()
	logStage(domain.StageGenerating).Debug(ctx, "Generating reply")
	reply, err := s.generator.Complete(ctx, prepared.request)
	if err != nil {
		stageErr := newStageError(domain.StageGenerating, ErrGenerationFailure, err)
		logStage(domain.StageFailed).With(logger.Fields{
			"error": err.Error(),
		}).WithDuration(started).Error(ctx, "Reply generation failed")
		return nil, stageErr
	}

	logStage(domain.StageCompleted).With(logger.Fields{
		"generation_ms": time.Since(start).Milliseconds(),
	}).WithDuration(started).Info(ctx, "Reply completed")

	return prepared.result(reply), nil
}

// StreamReply runs the pipeline and opens a streaming generation. If the
// generator cannot open the stream, a *StageError wrapping
// ErrGenerationFailure is returned. The caller must Close the stream.
func (s *ReplyService) StreamReply(ctx context.Context, text string) (*ReplyStream, error) {
	ctx = logger.WithField(ctx, logger.FieldMode, string(domain.ReplyModeStreaming))
	started := time.Now()

	prepared := s.prepare(ctx, text)

	logStage(domain.StageGenerating).Debug(ctx, "Opening reply stream")
	chunks, err := s.generator.Stream(ctx, prepared.request)
	if err != nil {
		logStage(domain.StageFailed).With(logger.Fields{
			"error": err.Error(),
		}).WithDuration(started).Error(ctx, "Reply stream could not be opened")
		return nil, newStageError(domain.StageGenerating, ErrGenerationFailure, err)
	}

	return newReplyStream(ctx, prepared, chunks, started), nil
}

// Classify labels text without storing or replying.
func (s *ReplyService) Classify(ctx context.Context, text string) domain.EmotionResult {
	return s.classifier.Classify(ctx, text)
}

// Store persists text with a known emotion result and returns the new ID.
func (s *ReplyService) Store(ctx context.Context, text string, emotion domain.EmotionResult) (string, error) {
	return s.index.Store(ctx, text, emotion)
}

// ClassifyAndStore classifies text and stores it with the result.
func (s *ReplyService) ClassifyAndStore(ctx context.Context, text string) (string, domain.EmotionResult, error) {
	emotion := s.classifier.Classify(ctx, text)
	id, err := s.index.Store(ctx, text, emotion)
	if err != nil {
		return "", emotion, err
	}
	return id, emotion, nil
}

// QuerySimilar returns stored feedback similar to text. Failures are carried
// in the result, never returned.
func (s *ReplyService) QuerySimilar(ctx context.Context, text string, limit int) QueryResult {
	return s.index.Query(ctx, text, limit)
}

func logStage(stage domain.Stage) *logger.Entry {
	return logger.With(logger.Fields{
		logger.FieldComponent: "reply",
		logger.FieldStage:     string(stage),
	})
}
