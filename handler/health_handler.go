package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       pinger
	provider string
	logger   *logrus.Logger
}

func NewHealthHandler(db pinger, provider string, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, provider: provider, logger: logger}
}

// Welcome GET /
func (h *HealthHandler) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Welcome to the media API",
		"routes":  []string{"/api/gallery", "/api/projects", "/health"},
	})
}

// HealthCheck GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WithError(err).Error("health check: metadata store unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":  false,
			"message":  "Database unavailable",
			"status":   "unhealthy",
			"database": "down",
			"storage":  h.provider,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Service is healthy",
		"status":   "ok",
		"database": "up",
		"storage":  h.provider,
	})
}

// NotFound is the fallback for unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": "Route not found",
		"path":    c.Request.URL.Path,
	})
}
