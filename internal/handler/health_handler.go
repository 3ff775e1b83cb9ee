package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_auth/internal/utils"
)

var startTime = time.Now()

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler provides health endpoint.
type HealthHandler struct {
	database Pinger
	cache    Pinger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(database, cache Pinger) *HealthHandler {
	return &HealthHandler{database: database, cache: cache}
}

// GetHealth responds with service, database and cache status. Any
// unreachable dependency turns the response into a 503.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := status(ctx, h.database)
	cacheStatus := status(ctx, h.cache)

	data := gin.H{
		"status":   "healthy",
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": gin.H{"status": dbStatus},
		"cache":    gin.H{"status": cacheStatus},
	}
	if dbStatus == "disconnected" || cacheStatus == "disconnected" {
		data["status"] = "degraded"
		c.JSON(503, utils.Response{
			Success: false,
			Code:    503,
			Message: "Service is degraded",
			Data:    data,
			Error:   &utils.ErrorInfo{Code: "SERVICE_UNAVAILABLE", Message: "A dependency is unreachable"},
			Meta:    utils.Meta{RequestID: utils.RequestID(c), Timestamp: time.Now().UTC().Format(time.RFC3339)},
		})
		return
	}

	utils.Success(c, 200, "Service is healthy", data)
}

func status(ctx context.Context, ping Pinger) string {
	if ping == nil {
		return "disabled"
	}
	if err := ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
