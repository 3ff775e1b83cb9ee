package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/metrics"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// LoggingMiddleware logs basic request/response details, injects a
// request_id into context and records request latency.
func LoggingMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// Generate request ID
		requestID := uuid.New().String()[:8]
		c.Set(utils.RequestIDKey, requestID)

		// Process request
		c.Next()

		// Log after response
		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), latency)

		event := log.Info()
		if status >= 500 {
			event = log.Warn()
		}
		event = event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP())
		if p := GetPrincipal(c); p != nil {
			event = event.Str("user_id", p.UserID().String())
		}
		event.Msg("HTTP Request")
	}
}
