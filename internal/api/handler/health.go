package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/emoreply/internal/service"
)

const readinessTimeout = 3 * time.Second

// HealthHandler handles health check endpoints
type HealthHandler struct {
	index *service.FeedbackIndex
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(index *service.FeedbackIndex) *HealthHandler {
	return &HealthHandler{index: index}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready reports whether the feedback index is reachable. Reply generation
// works without it, so this is informational for load balancers.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	count, err := h.index.Count(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"index":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"indexed_records": count,
	})
}
