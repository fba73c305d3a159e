package service

import (
	"errors"
	"fmt"

	"github.com/timmy/emoreply/internal/domain"
)

// Error kinds. Classification and retrieval kinds are fail-soft: they are
// carried or logged, never returned from the orchestrator.
var (
	ErrClassificationUnavailable = errors.New("classification unavailable")
	ErrRetrievalUnavailable      = errors.New("retrieval unavailable")
	ErrEmbeddingFailure          = errors.New("embedding failure")
	ErrIndexFailure              = errors.New("index failure")
	ErrGenerationFailure         = errors.New("generation failure")
)

// StageError attaches the pipeline stage and error kind to a collaborator error.
// errors.Is matches both Kind and the wrapped cause.
type StageError struct {
	Stage domain.Stage
	Kind  error
	Err   error
}

func newStageError(stage domain.Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorKind returns the sentinel kind carried by err, or nil.
func ErrorKind(err error) error {
	for _, kind := range []error{
		ErrGenerationFailure,
		ErrEmbeddingFailure,
		ErrIndexFailure,
		ErrRetrievalUnavailable,
		ErrClassificationUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
