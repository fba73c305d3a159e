package domain

// Emotion is a label produced by the emotion classifier.
type Emotion string

const (
	EmotionAnger   Emotion = "anger"
	EmotionDisgust Emotion = "disgust"
	EmotionFear    Emotion = "fear"
	EmotionJoy     Emotion = "joy"
	EmotionSadness Emotion = "sadness"

	// EmotionUnknown is the dominant emotion when no label could be scored.
	EmotionUnknown Emotion = "unknown"
)

// EmotionLabels is the fixed label set in tie-break order: when two labels share
// the maximum intensity, the one listed first becomes dominant.
var EmotionLabels = []Emotion{
	EmotionAnger,
	EmotionDisgust,
	EmotionFear,
	EmotionJoy,
	EmotionSadness,
}

// IsLabel reports whether e is one of the fixed classifier labels.
func (e Emotion) IsLabel() bool {
	for _, label := range EmotionLabels {
		if e == label {
			return true
		}
	}
	return false
}

// EmotionResult is the normalized output of the classifier.
// A nil intensity means the label is unknown; it is encoded as JSON null.
type EmotionResult struct {
	Anger           *float64 `json:"anger"`
	Disgust         *float64 `json:"disgust"`
	Fear            *float64 `json:"fear"`
	Joy             *float64 `json:"joy"`
	Sadness         *float64 `json:"sadness"`
	DominantEmotion Emotion  `json:"dominant_emotion"`
}

// NewEmotionResult builds a result from raw label scores. Labels outside the
// fixed set are ignored. The dominant emotion is the argmax over present labels.
func NewEmotionResult(scores map[Emotion]float64) EmotionResult {
	var r EmotionResult
	for _, label := range EmotionLabels {
		if v, ok := scores[label]; ok {
			r.set(label, v)
		}
	}
	r.DominantEmotion = r.argmax()
	return r
}

// UnknownEmotionResult returns the sentinel result used when classification
// is unavailable.
func UnknownEmotionResult() EmotionResult {
	return EmotionResult{DominantEmotion: EmotionUnknown}
}

// Score returns the intensity of a label and whether it is known.
func (r EmotionResult) Score(label Emotion) (float64, bool) {
	p := r.field(label)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Scores returns the known label intensities.
func (r EmotionResult) Scores() map[Emotion]float64 {
	scores := make(map[Emotion]float64, len(EmotionLabels))
	for _, label := range EmotionLabels {
		if v, ok := r.Score(label); ok {
			scores[label] = v
		}
	}
	return scores
}

// IsKnown reports whether the classifier produced a usable result.
func (r EmotionResult) IsKnown() bool {
	return r.DominantEmotion != "" && r.DominantEmotion != EmotionUnknown
}

// Normalize recomputes the dominant emotion from the stored intensities.
// Results decoded from untrusted input go through this before use.
func (r EmotionResult) Normalize() EmotionResult {
	r.DominantEmotion = r.argmax()
	return r
}

func (r EmotionResult) argmax() Emotion {
	dominant := EmotionUnknown
	var best float64
	for _, label := range EmotionLabels {
		v, ok := r.Score(label)
		if !ok {
			continue
		}
		if dominant == EmotionUnknown || v > best {
			dominant = label
			best = v
		}
	}
	return dominant
}

func (r *EmotionResult) set(label Emotion, v float64) {
	switch label {
	case EmotionAnger:
		r.Anger = &v
	case EmotionDisgust:
		r.Disgust = &v
	case EmotionFear:
		r.Fear = &v
	case EmotionJoy:
		r.Joy = &v
	case EmotionSadness:
		r.Sadness = &v
	}
}

func (r EmotionResult) field(label Emotion) *float64 {
	switch label {
	case EmotionAnger:
		return r.Anger
	case EmotionDisgust:
		return r.Disgust
	case EmotionFear:
		return r.Fear
	case EmotionJoy:
		return r.Joy
	case EmotionSadness:
		return r.Sadness
	}
	return nil
}
