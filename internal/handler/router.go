package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/databot/youtube-tracker/internal/metrics"
)

// NewRouter builds the admin HTTP surface: probes, metrics, on-demand sync,
// and read endpoints.
func NewRouter(health *HealthHandler, admin *AdminHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", health.LivenessProbe)
	router.GET("/readyz", health.ReadinessProbe)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/sync", admin.TriggerSync)
	router.POST("/backfill", admin.Backfill)
	router.GET("/videos/:id/stats", admin.VideoStats)
	router.GET("/reports/:user/:year/:month", admin.MonthlyReport)

	return router
}
