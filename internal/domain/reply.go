package domain

// Stage is a step of the reply pipeline.
type Stage string

const (
	StageClassifying Stage = "classifying"
	StageRetrieving  Stage = "retrieving"
	StageAssembling  Stage = "assembling"
	StageGenerating  Stage = "generating"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"

	// StageStoring is used by the write path, outside the reply pipeline.
	StageStoring Stage = "storing"
)

// ReplyMode distinguishes blocking and streamed replies.
type ReplyMode string

const (
	ReplyModeBlocking  ReplyMode = "blocking"
	ReplyModeStreaming ReplyMode = "streaming"
)

// GenerationRequest is the rendered input for the generation collaborator.
type GenerationRequest struct {
	SystemPrompt    string  `json:"system_prompt"`
	UserPrompt      string  `json:"user_prompt"`
	Text            string  `json:"text"`
	DominantEmotion Emotion `json:"dominant_emotion"`
	Examples        string  `json:"examples"`
	ExampleCount    int     `json:"example_count"`
}

// ReplyResult is the materialized output of a blocking reply.
type ReplyResult struct {
	Text            string            `json:"input_feedback"`
	DominantEmotion Emotion           `json:"detected_emotion"`
	Emotion         EmotionResult     `json:"emotion"`
	Reply           string            `json:"suggested_reply"`
	Matches         []SimilarityMatch `json:"similar_feedback"`
	RetrievalError  string            `json:"retrieval_error,omitempty"`
}
