package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/emoreply/internal/domain"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/repository"
	"github.com/timmy/emoreply/internal/service"
)

const (
	maxFeedbackLength = 5000
	defaultPageSize   = 20
	maxPageSize       = 100
)

// ReplyHandler handles reply generation endpoints.
type ReplyHandler struct {
	replies  *service.ReplyService
	recorder *service.ReplyRecorder
	logs     *repository.ReplyLogRepository
}

// NewReplyHandler creates a new reply handler.
// Parameters:
//   - replies: reply orchestrator.
//   - recorder: audit recorder, may be nil.
//   - logs: reply log repository, nil when the database is disabled.
//
// Returns:
//   - *ReplyHandler: initialized handler.
func NewReplyHandler(replies *service.ReplyService, recorder *service.ReplyRecorder, logs *repository.ReplyLogRepository) *ReplyHandler {
	return &ReplyHandler{
		replies:  replies,
		recorder: recorder,
		logs:     logs,
	}
}

// ReplyRequest is the body of reply endpoints.
type ReplyRequest struct {
	Text string `json:"text" form:"text" binding:"required"`
}

// ReplyResponse is the blocking reply payload.
type ReplyResponse struct {
	ReplyID string `json:"reply_id"`
	*domain.ReplyResult
}

type streamMeta struct {
	ReplyID         string                   `json:"reply_id"`
	DetectedEmotion domain.Emotion           `json:"detected_emotion"`
	Emotion         domain.EmotionResult     `json:"emotion"`
	SimilarFeedback []domain.SimilarityMatch `json:"similar_feedback"`
	RetrievalError  string                   `json:"retrieval_error,omitempty"`
}

type streamDone struct {
	ReplyID        string `json:"reply_id"`
	SuggestedReply string `json:"suggested_reply"`
}

// bindFeedbackText reads and validates the feedback text from a JSON body or,
// for GET, the query string. It writes a 400 and returns false on failure.
func bindFeedbackText(c *gin.Context) (string, bool) {
	var req ReplyRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return "", false
	}

	text := strings.TrimSpace(req.Text)
	switch {
	case text == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return "", false
	case len(text) > maxFeedbackLength:
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must be at most " + strconv.Itoa(maxFeedbackLength) + " bytes"})
		return "", false
	}
	return text, true
}

// newReply tags the request context with a fresh reply ID.
func newReply(c *gin.Context) (context.Context, string) {
	replyID := uuid.New().String()
	c.Header("X-Reply-ID", replyID)
	return logger.SetReplyID(c.Request.Context(), replyID), replyID
}

// Create handles POST /api/v1/replies.
func (h *ReplyHandler) Create(c *gin.Context) {
	text, ok := bindFeedbackText(c)
	if !ok {
		return
	}
	ctx, replyID := newReply(c)
	started := time.Now()

	result, err := h.replies.GenerateReply(ctx, text)
	h.recorder.Record(context.WithoutCancel(ctx), service.ReplyRecord{
		ID:      replyID,
		Mode:    domain.ReplyModeBlocking,
		Text:    text,
		Result:  result,
		Err:     err,
		Started: started,
	})
	if err != nil {
		c.JSON(statusForError(err), gin.H{
			"error":    "Reply generation failed: " + err.Error(),
			"reply_id": replyID,
		})
		return
	}

	c.JSON(http.StatusOK, ReplyResponse{ReplyID: replyID, ReplyResult: result})
}

// Stream handles GET|POST /api/v1/replies/stream as server-sent events:
// one "meta" event, "fragment" events, then "done" or "error".
// A client disconnect cancels the request context, which ends the stream.
func (h *ReplyHandler) Stream(c *gin.Context) {
	text, ok := bindFeedbackText(c)
	if !ok {
		return
	}
	ctx, replyID := newReply(c)
	started := time.Now()

	stream, err := h.replies.StreamReply(ctx, text)
	if err != nil {
		h.recorder.Record(context.WithoutCancel(ctx), service.ReplyRecord{
			ID:      replyID,
			Mode:    domain.ReplyModeStreaming,
			Text:    text,
			Err:     err,
			Started: started,
		})
		c.JSON(statusForError(err), gin.H{
			"error":    "Reply generation failed: " + err.Error(),
			"reply_id": replyID,
		})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	meta := streamMeta{
		ReplyID:         replyID,
		DetectedEmotion: stream.DominantEmotion(),
		Emotion:         stream.Emotion(),
		SimilarFeedback: stream.Matches(),
	}
	if retrievalErr := stream.RetrievalErr(); retrievalErr != nil {
		meta.RetrievalError = retrievalErr.Error()
	}
	c.SSEvent("meta", meta)
	c.Writer.Flush()

	for stream.Next() {
		c.SSEvent("fragment", gin.H{"content": stream.Fragment()})
		c.Writer.Flush()
	}

	streamErr := stream.Err()
	switch {
	case streamErr == nil:
		c.SSEvent("done", streamDone{ReplyID: replyID, SuggestedReply: stream.Reply()})
		c.Writer.Flush()
	case errors.Is(streamErr, context.Canceled):
		// Client is gone; nothing left to write.
	default:
		c.SSEvent("error", gin.H{"reply_id": replyID, "error": streamErr.Error()})
		c.Writer.Flush()
	}

	h.recorder.Record(context.WithoutCancel(ctx), service.ReplyRecord{
		ID:      replyID,
		Mode:    domain.ReplyModeStreaming,
		Text:    text,
		Result:  stream.Result(),
		Err:     streamErr,
		Started: started,
	})
}

// ReplyLogPage is the paginated audit log response.
type ReplyLogPage struct {
	Items  []domain.ReplyLog `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// List handles GET /api/v1/replies.
func (h *ReplyHandler) List(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reply log is disabled"})
		return
	}

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	filter := repository.ReplyLogFilter{
		Emotion: domain.Emotion(c.Query("emotion")),
		Status:  domain.ReplyStatus(c.Query("status")),
	}

	ctx := c.Request.Context()
	items, err := h.logs.List(ctx, filter, limit, offset)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to list reply logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list replies"})
		return
	}
	total, err := h.logs.Count(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to count reply logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list replies"})
		return
	}
	if items == nil {
		items = []domain.ReplyLog{}
	}

	c.JSON(http.StatusOK, ReplyLogPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
