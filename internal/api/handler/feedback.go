package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/service"
)

// InvalidTextMessage is returned by the emotion detector when no emotion
// could be determined.
const InvalidTextMessage = "Invalid text! Please try again"

// FeedbackHandler handles classification, storage and similarity endpoints.
type FeedbackHandler struct {
	replies *service.ReplyService
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(replies *service.ReplyService) *FeedbackHandler {
	return &FeedbackHandler{replies: replies}
}

// StoreRequest is the body of POST /api/v1/feedback.
type StoreRequest struct {
	Text    string                `json:"text" binding:"required"`
	Emotion *domain.EmotionResult `json:"emotion,omitempty"`
}

// StoreResponse is returned after a record was stored.
type StoreResponse struct {
	ID      string               `json:"id"`
	Emotion domain.EmotionResult `json:"emotion"`
}

// SimilarResponse carries matches and a retrieval diagnostic when the index
// was unavailable.
type SimilarResponse struct {
	Matches []domain.SimilarityMatch `json:"matches"`
	Error   string                   `json:"error,omitempty"`
}

// Store handles POST /api/v1/feedback. Text is classified unless the request
// already carries an emotion result.
func (h *FeedbackHandler) Store(c *gin.Context) {
	var req StoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return
	}

	ctx := c.Request.Context()
	var (
		id      string
		emotion domain.EmotionResult
		err     error
	)
	if req.Emotion != nil {
		emotion = req.Emotion.Normalize()
		id, err = h.replies.Store(ctx, text, emotion)
	} else {
		id, emotion, err = h.replies.ClassifyAndStore(ctx, text)
	}
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to store feedback: " + err.Error()})
		return
	}

	logger.With(logger.Fields{
		logger.FieldFeedbackID: id,
		"dominant_emotion":     emotion.DominantEmotion,
	}).Info(ctx, "Feedback stored")

	c.JSON(http.StatusCreated, StoreResponse{ID: id, Emotion: emotion})
}

// Similar handles GET /api/v1/feedback/similar?q=...&limit=...
// Retrieval failures still return 200 with an empty list and an error note.
func (h *FeedbackHandler) Similar(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	res := h.replies.QuerySimilar(c.Request.Context(), query, limit)
	resp := SimilarResponse{Matches: res.Matches}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Classify handles POST /api/v1/emotions and returns the emotion result.
// An unavailable classifier yields the unknown result, not an error.
func (h *FeedbackHandler) Classify(c *gin.Context) {
	text, ok := bindFeedbackText(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.replies.Classify(c.Request.Context(), text))
}

// EmotionDetector handles GET /emotionDetector?inputText=... with a plain
// text sentence.
func (h *FeedbackHandler) EmotionDetector(c *gin.Context) {
	text := strings.TrimSpace(c.Query("inputText"))
	if text == "" {
		c.String(http.StatusBadRequest, InvalidTextMessage)
		return
	}

	result := h.replies.Classify(c.Request.Context(), text)
	if !result.IsKnown() {
		c.String(http.StatusBadRequest, InvalidTextMessage)
		return
	}
	c.String(http.StatusOK, FormatEmotionSentence(result))
}

// FormatEmotionSentence renders a known result as the detector's sentence.
func FormatEmotionSentence(r domain.EmotionResult) string {
	score := func(label domain.Emotion) string {
		v, ok := r.Score(label)
		if !ok {
			return "None"
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("For the given statement, the system response is 'anger': %s, 'disgust': %s, 'fear': %s, 'joy': %s and 'sadness': %s. The dominant emotion is %s.",
		score(domain.EmotionAnger),
		score(domain.EmotionDisgust),
		score(domain.EmotionFear),
		score(domain.EmotionJoy),
		score(domain.EmotionSadness),
		r.DominantEmotion,
	)
}

// statusForError maps hard pipeline failures to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
