// Package prompts renders generation requests for support replies.
package prompts

import (
	"fmt"
	"strings"

	"github.com/timmy/emoreply/internal/domain"
)

// ReplySystemPrompt instructs the generator to write a short empathetic reply
// without revealing classification or retrieval.
const ReplySystemPrompt = `You are a kind, considerate customer support agent.
You receive a piece of customer feedback and its detected emotion.
Optionally, you also get a few similar past examples of feedback.
Your job is to write a short empathetic reply (3-5 sentences) that acknowledges the emotion
and either reassures the customer or gives them a clear next step.
Do NOT mention that you are using AI, emotion detection, embeddings or past examples.
Just sound like a human support agent.`

// NoSimilarFeedback replaces the example block when retrieval found nothing.
const NoSimilarFeedback = "(No similar past feedback was found in the database)"

// replyUserTemplate holds: feedback text, dominant emotion, example block.
const replyUserTemplate = `Customer feedback: %s

Detected dominant emotion: %s

Similar past feedback and emotions:
%s

Write a short reply (3-5 sentences max).`

// Assemble renders the generation request for a piece of feedback.
// Matches are rendered in the order given, numbered from 1; matches without
// text are skipped and do not consume a number.
func Assemble(text string, dominant domain.Emotion, matches []domain.SimilarityMatch) *domain.GenerationRequest {
	if dominant == "" {
		dominant = domain.EmotionUnknown
	}

	examples, count := RenderExamples(matches)

	return &domain.GenerationRequest{
		SystemPrompt:    ReplySystemPrompt,
		UserPrompt:      fmt.Sprintf(replyUserTemplate, text, dominant, examples),
		Text:            text,
		DominantEmotion: dominant,
		Examples:        examples,
		ExampleCount:    count,
	}
}

// RenderExamples renders the example block and returns how many examples it holds.
func RenderExamples(matches []domain.SimilarityMatch) (string, int) {
	var b strings.Builder
	n := 0
	for _, m := range matches {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "Example %d:\n- Text: %s\n- Emotion: %s\n", n, m.Text, m.DominantEmotion())
	}

	if n == 0 {
		return NoSimilarFeedback, 0
	}
	return strings.TrimSuffix(b.String(), "\n"), n
}
