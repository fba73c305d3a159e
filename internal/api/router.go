package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/emoreply/internal/api/handler"
	"github.com/timmy/emoreply/internal/api/middleware"
	"github.com/timmy/emoreply/internal/config"
	"github.com/timmy/emoreply/internal/repository"
	"github.com/timmy/emoreply/internal/service"
)

// Services are the components the HTTP layer calls into.
type Services struct {
	Replies  *service.ReplyService
	Index    *service.FeedbackIndex
	Seeder   *service.SeedService
	Recorder *service.ReplyRecorder
	Logs     *repository.ReplyLogRepository // nil when the database is disabled
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(svc.Index)
	replyHandler := handler.NewReplyHandler(svc.Replies, svc.Recorder, svc.Logs)
	feedbackHandler := handler.NewFeedbackHandler(svc.Replies)
	adminHandler := handler.NewAdminHandler(svc.Seeder, svc.Index, cfg.Ingest.SourceDir)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// Rate-limited: every route below calls paid collaborators.
	limited := r.Group("")
	if cfg.Server.RateLimit.Enabled {
		limited.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		})))
	}

	limited.GET("/emotionDetector", feedbackHandler.EmotionDetector)

	v1 := limited.Group("/api/v1")
	{
		// Replies
		v1.POST("/replies", replyHandler.Create)
		v1.GET("/replies", replyHandler.List)
		v1.POST("/replies/stream", replyHandler.Stream)
		v1.GET("/replies/stream", replyHandler.Stream)

		// Emotions
		v1.POST("/emotions", feedbackHandler.Classify)

		// Feedback
		v1.POST("/feedback", feedbackHandler.Store)
		v1.GET("/feedback/similar", feedbackHandler.Similar)
	}

	admin := v1.Group("/admin")
	{
		admin.GET("/sources", adminHandler.ListSources)
		admin.POST("/seed", adminHandler.TriggerSeed)
		admin.GET("/seed/status", adminHandler.GetSeedStatus)
		admin.GET("/index", adminHandler.IndexStats)
		admin.DELETE("/feedback/:id", adminHandler.DeleteFeedback)
	}

	return r
}
