package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/scheduler"
	"github.com/databot/youtube-tracker/internal/service/tracker"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// AdminHandler exposes on-demand sync and read endpoints over the tracker.
type AdminHandler struct {
	svc   *tracker.Service
	sched *scheduler.Scheduler
	log   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(svc *tracker.Service, sched *scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{
		svc:   svc,
		sched: sched,
		log:   logger.Named("handler"),
	}
}

type syncRequest struct {
	Job string `json:"job" binding:"required"`
}

// TriggerSync runs one registered job outside its schedule and waits for it.
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "body must name a job",
			"jobs":  h.sched.Names(),
		})
		return
	}

	h.log.Info("on-demand sync requested", zap.String("job", req.Job))

	start := time.Now()
	if err := h.sched.RunNow(c.Request.Context(), req.Job); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"job":   req.Job,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     req.Job,
		"elapsed": time.Since(start).String(),
	})
}

// Backfill recomputes the previous month's snapshots from current data,
// overwriting rows already written for that month.
func (h *AdminHandler) Backfill(c *gin.Context) {
	h.log.Info("backfill requested")

	start := time.Now()
	if err := h.svc.BackfillMonth(c.Request.Context()); err != nil {
		h.log.Error("backfill failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"elapsed": time.Since(start).String(),
	})
}

// VideoStats returns a tracked video with refreshed statistics.
func (h *AdminHandler) VideoStats(c *gin.Context) {
	videoID := c.Param("id")

	video, err := h.svc.GetStats(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, youtube.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not tracked"})
			return
		}
		h.log.Error("stats lookup failed", zap.String("video_id", videoID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}

	c.JSON(http.StatusOK, video)
}

// MonthlyReport returns a user's closed report for one month.
func (h *AdminHandler) MonthlyReport(c *gin.Context) {
	discordUserID := c.Param("user")

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
		return
	}

	entries, err := h.svc.GetMonthlyReport(c.Request.Context(), discordUserID, year, month)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
			return
		}
		h.log.Error("report lookup failed",
			zap.String("discord_user_id", discordUserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report lookup failed"})
		return
	}

	if entries == nil {
		entries = []*models.ReportEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    discordUserID,
		"year":    year,
		"month":   month,
		"entries": entries,
	})
}
