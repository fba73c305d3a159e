package service

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
)

// ErrStreamClosed is reported by Err when the consumer closed the stream
// before the generator finished.
var ErrStreamClosed = errors.New("reply stream closed before completion")

var errEmptyCompletion = errors.New("generator returned an empty completion")

// ReplyStream is a forward-only sequence of reply fragments. Fragments with no
// content are never yielded. The stream cannot be restarted; a second reply
// requires a new StreamReply call.
//
//	stream, err := svc.StreamReply(ctx, text)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//		write(stream.Fragment())
//	}
//	if err := stream.Err(); err != nil { ... }
type ReplyStream struct {
	ctx      context.Context
	prepared *preparedReply
	chunks   ChunkStream
	started  time.Time

	fragment  string
	reply     strings.Builder
	fragments int
	err       error
	done      bool
	closeOnce sync.Once
}

func newReplyStream(ctx context.Context, prepared *preparedReply, chunks ChunkStream, started time.Time) *ReplyStream {
	return &ReplyStream{
		ctx:      ctx,
		prepared: prepared,
		chunks:   chunks,
		started:  started,
	}
}

// Next advances to the next non-empty fragment. It returns false when the
// generator finished, failed, or the context was cancelled.
func (r *ReplyStream) Next() bool {
	if r.done {
		return false
	}

	for {
		if err := r.contextErr(); err != nil {
			r.finish(err)
			return false
		}

		if !r.chunks.Next() {
			if ctxErr := r.contextErr(); ctxErr != nil {
				r.finish(ctxErr)
			} else if err := r.chunks.Err(); err != nil {
				r.finish(newStageError(domain.StageGenerating, ErrGenerationFailure, err))
			} else if r.fragments == 0 {
				// Blocking completions reject empty content; streams must agree.
				r.finish(newStageError(domain.StageGenerating, ErrGenerationFailure, errEmptyCompletion))
			} else {
				r.finish(nil)
			}
			return false
		}

		chunk := r.chunks.Chunk()
		if chunk.Content == "" {
			continue
		}

		r.fragment = chunk.Content
		r.reply.WriteString(chunk.Content)
		r.fragments++
		return true
	}
}

// Fragment returns the fragment produced by the last successful Next.
func (r *ReplyStream) Fragment() string {
	return r.fragment
}

// Err returns the error that ended the stream early, or nil. Generator
// failures and deadlines wrap ErrGenerationFailure; cancellation returns
// context.Canceled.
func (r *ReplyStream) Err() error {
	return r.err
}

// Reply returns the concatenation of all fragments yielded so far.
func (r *ReplyStream) Reply() string {
	return r.reply.String()
}

// Text returns the feedback text the reply is for.
func (r *ReplyStream) Text() string {
	return r.prepared.text
}

// DominantEmotion returns the label the prompt was assembled with.
func (r *ReplyStream) DominantEmotion() domain.Emotion {
	return r.prepared.request.DominantEmotion
}

// Emotion returns the classification result.
func (r *ReplyStream) Emotion() domain.EmotionResult {
	return r.prepared.emotion
}

// Matches returns the retrieved similar feedback.
func (r *ReplyStream) Matches() []domain.SimilarityMatch {
	return r.prepared.retrieval.Matches
}

// RetrievalErr returns the carried retrieval failure, if any.
func (r *ReplyStream) RetrievalErr() error {
	return r.prepared.retrieval.Err
}

// Result materializes what has been streamed so far.
func (r *ReplyStream) Result() *domain.ReplyResult {
	return r.prepared.result(r.Reply())
}

// All returns the remaining fragments as an iterator. The stream is closed
// when iteration stops.
func (r *ReplyStream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.fragment) {
				return
			}
		}
	}
}

// Close releases the generator stream. It is safe to call more than once.
func (r *ReplyStream) Close() error {
	if !r.done {
		if err := r.contextErr(); err != nil {
			r.finish(err)
		} else {
			r.finish(ErrStreamClosed)
		}
	}
	var err error
	r.closeOnce.Do(func() {
		err = r.chunks.Close()
	})
	return err
}

// contextErr maps the request context state: a cancelled consumer is reported
// as is, a deadline is a generation failure like any other timeout.
func (r *ReplyStream) contextErr() error {
	err := r.ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return newStageError(domain.StageGenerating, ErrGenerationFailure, err)
	}
	return err
}

func (r *ReplyStream) finish(err error) {
	if r.done {
		return
	}
	r.done = true
	r.err = err
	r.closeOnce.Do(func() {
		_ = r.chunks.Close()
	})

	entry := logger.With(logger.Fields{
		logger.FieldComponent: "reply",
		"fragments":           r.fragments,
	}).WithDuration(r.started)

	switch {
	case err == nil:
		entry.With(logger.Fields{logger.FieldStage: string(domain.StageCompleted)}).
			Info(r.ctx, "Reply stream completed")
	case errors.Is(err, context.Canceled), errors.Is(err, ErrStreamClosed):
		entry.With(logger.Fields{logger.FieldStage: string(domain.StageFailed)}).
			Warn(r.ctx, "Reply stream cancelled by consumer")
	default:
		entry.With(logger.Fields{
			logger.FieldStage: string(domain.StageFailed),
			"error":           err.Error(),
		}).Error(r.ctx, "Reply stream failed")
	}
}
