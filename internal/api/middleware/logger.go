package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/emoreply/internal/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

// healthPaths are polled by load balancers and only logged at debug level.
var healthPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// LoggerMiddleware tags the request context with a request ID and logs one
// line per request. An incoming X-Request-ID is reused when it is short
// enough, otherwise a new one is generated.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := logger.WithFields(c.Request.Context(), logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldSize:       c.Writer.Size(),
			"route":                route,
			"client_ip":            c.ClientIP(),
		}
		if replyID := c.Writer.Header().Get("X-Reply-ID"); replyID != "" {
			fields[logger.FieldReplyID] = replyID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.With(fields)
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		case status >= http.StatusBadRequest:
			entry.Warn(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		case healthPaths[c.Request.URL.Path]:
			entry.Debug(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		default:
			entry.Info(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		}
	}
}
