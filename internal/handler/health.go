// Package handler provides the admin HTTP surface: probes, metrics, and thin
// wrappers over the tracker service.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/databot/youtube-tracker/internal/notify"
)

// HealthHandler handles the liveness and readiness probes.
type HealthHandler struct {
	pool      *pgxpool.Pool
	publisher notify.Publisher
	redis     *redis.Client
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(pool *pgxpool.Pool, publisher notify.Publisher, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		publisher: publisher,
		redis:     redisClient,
	}
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe checks if the application can reach its dependencies.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "DOWN",
			"database": "unhealthy",
			"error":    err.Error(),
			"time":     time.Now(),
		})
		return
	}

	if h.publisher != nil && !h.publisher.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "DOWN",
			"rabbitmq": "unhealthy",
			"time":     time.Now(),
		})
		return
	}

	cacheState := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
				"redis":  "unhealthy",
				"error":  err.Error(),
				"time":   time.Now(),
			})
			return
		}
		cacheState = "healthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "UP",
		"database": "healthy",
		"rabbitmq": "healthy",
		"redis":    cacheState,
		"time":     time.Now(),
	})
}
