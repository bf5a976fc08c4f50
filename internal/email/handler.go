package email

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handler serves the mailer worker's health and stats endpoints
type Handler struct {
	redis  redis.UniversalClient
	store  *IdempotencyStore
	logger *slog.Logger
}

// NewHandler creates a new mailer handler
func NewHandler(client redis.UniversalClient, store *IdempotencyStore, logger *slog.Logger) *Handler {
	return &Handler{redis: client, store: store, logger: logger}
}

// RegisterRoutes mounts the mailer endpoints
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/stats", h.Stats)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	redisStatus := "connected"
	if err := h.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "disconnected"
		h.logger.Error("Redis health check failed", "error", err)
	}

	status, httpStatus := "healthy", http.StatusOK
	if redisStatus != "connected" {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"service": "mailer",
		"redis":   redisStatus,
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(c *gin.Context) {
	count, err := h.store.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to retrieve stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"idempotency_records": count,
		"ttl_hours":           int(h.store.ttl.Hours()),
	})
}
