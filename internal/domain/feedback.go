package domain

import "time"

// FeedbackRecord is a unit of stored feedback owned by the vector index.
// Records are immutable once stored.
type FeedbackRecord struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Emotion   EmotionResult `json:"emotion"`
	Vector    []float32     `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// SimilarityMatch is a scored projection of a stored record returned by a
// query. It never carries the raw vector.
type SimilarityMatch struct {
	ID      string        `json:"id"`
	Score   float32       `json:"score"`
	Text    string        `json:"text"`
	Emotion EmotionResult `json:"emotion"`
}

// DominantEmotion is a shorthand for the matched record's dominant label.
func (m SimilarityMatch) DominantEmotion() Emotion {
	if m.Emotion.DominantEmotion == "" {
		return EmotionUnknown
	}
	return m.Emotion.DominantEmotion
}
