package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/service"
	"github.com/timmy/emoreply/internal/source"
	"github.com/timmy/emoreply/internal/source/file"
)

// AdminHandler handles seeding and index maintenance.
type AdminHandler struct {
	seeder    *service.SeedService
	index     *service.FeedbackIndex
	sourceDir string

	// Seed job state
	mu            sync.Mutex
	isRunning     bool
	currentStats  *service.SeedStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - seeder: seed service instance.
//   - index: feedback index for maintenance operations.
//   - sourceDir: directory holding .jsonl/.txt feedback files.
//
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(seeder *service.SeedService, index *service.FeedbackIndex, sourceDir string) *AdminHandler {
	return &AdminHandler{
		seeder:    seeder,
		index:     index,
		sourceDir: sourceDir,
	}
}

// SeedRequest represents the seed API request.
type SeedRequest struct {
	Source string `json:"source" binding:"required"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=100000"`
}

// SeedResponse represents the seed API response.
type SeedResponse struct {
	Message string             `json:"message"`
	Stats   *service.SeedStats `json:"stats,omitempty"`
}

// SeedStatusResponse represents the seed status.
type SeedStatusResponse struct {
	IsRunning     bool               `json:"is_running"`
	LastRunTime   string             `json:"last_run_time,omitempty"`
	LastRunStatus string             `json:"last_run_status,omitempty"`
	CurrentStats  *service.SeedStats `json:"current_stats,omitempty"`
}

// sources lists the feedback files under sourceDir keyed by base name
// without extension.
func (h *AdminHandler) sources() (map[string]source.Source, error) {
	files, err := file.ListFeedbackFiles(h.sourceDir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]source.Source, len(files))
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out[name] = file.NewAdapter(path)
	}
	return out, nil
}

// ListSources handles GET /api/v1/admin/sources.
func (h *AdminHandler) ListSources(c *gin.Context) {
	sources, err := h.sources()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	names := make([]gin.H, 0, len(sources))
	for name, src := range sources {
		names = append(names, gin.H{"name": name, "display_name": src.GetDisplayName()})
	}
	c.JSON(http.StatusOK, gin.H{"sources": names})
}

// TriggerSeed handles POST /api/v1/admin/seed.
func (h *AdminHandler) TriggerSeed(c *gin.Context) {
	ctx := c.Request.Context()

	var req SeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid seed request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sources, err := h.sources()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	src, ok := sources[req.Source]
	if !ok {
		logger.CtxWarn(ctx, "Unknown source requested: source=%s, client_ip=%s", req.Source, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + req.Source})
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Seed request rejected: already running, source=%s", req.Source)
		c.JSON(http.StatusConflict, gin.H{"error": "Seed is already running"})
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting seed: source=%s, limit=%d", req.Source, req.Limit)

	// Detached from the request so a client timeout does not abort the run.
	seedCtx := context.WithoutCancel(ctx)
	startTime := time.Now()
	stats, err := h.seeder.SeedFromSource(seedCtx, src, &service.SeedOptions{Limit: req.Limit})
	duration := time.Since(startTime)

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Seed failed: source=%s, error=%v", req.Source, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}

	c.JSON(http.StatusOK, SeedResponse{
		Message: "Seed completed successfully",
		Stats:   stats,
	})
}

// GetSeedStatus handles GET /api/v1/admin/seed/status.
func (h *AdminHandler) GetSeedStatus(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp := SeedStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteFeedback handles DELETE /api/v1/admin/feedback/:id.
func (h *AdminHandler) DeleteFeedback(c *gin.Context) {
	id := c.Param("id")
	if err := h.index.Delete(c.Request.Context(), id); err != nil {
		c.JSON(statusForError(err), gin.H{"error": "Failed to delete feedback: " + err.Error()})
		return
	}
	logger.With(logger.Fields{logger.FieldFeedbackID: id}).Info(c.Request.Context(), "Feedback deleted")
	c.Status(http.StatusNoContent)
}

// IndexStats handles GET /api/v1/admin/index.
func (h *AdminHandler) IndexStats(c *gin.Context) {
	count, err := h.index.Count(c.Request.Context())
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": count})
}
