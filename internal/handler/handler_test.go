package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/scheduler"
	"github.com/databot/youtube-tracker/internal/service/cache"
	"github.com/databot/youtube-tracker/internal/service/tracker"
	"github.com/databot/youtube-tracker/internal/service/verification"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUserRepo struct {
	users map[string]*models.User
}

func (r *stubUserRepo) UpsertUser(_ context.Context, user *models.User) error {
	if existing, ok := r.users[user.DiscordUserID]; ok {
		user.ID = existing.ID
		return nil
	}
	user.ID = int64(len(r.users) + 1)
	r.users[user.DiscordUserID] = user
	return nil
}

func (r *stubUserRepo) GetByDiscordID(_ context.Context, discordUserID string) (*models.User, error) {
	user, ok := r.users[discordUserID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return user, nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, db.ErrNotFound
}

type stubChannelRepo struct{}

func (r *stubChannelRepo) UpsertChannel(context.Context, *models.Channel) error { return nil }
func (r *stubChannelRepo) GetByChannelID(context.Context, string) (*models.Channel, error) {
	return nil, db.ErrNotFound
}
func (r *stubChannelRepo) GetByID(context.Context, int64) (*models.Channel, error) {
	return nil, db.ErrNotFound
}
func (r *stubChannelRepo) UpdateVerification(context.Context, *models.Channel) error { return nil }
func (r *stubChannelRepo) ListPendingCheck(context.Context, int) ([]*models.Channel, error) {
	return nil, nil
}
func (r *stubChannelRepo) ListSyncCandidates(context.Context, *models.VerificationMode) ([]*models.Channel, error) {
	return nil, nil
}
func (r *stubChannelRepo) SetActive(context.Context, int64, bool) error      { return nil }
func (r *stubChannelRepo) TouchSync(context.Context, int64, time.Time) error { return nil }

type stubVideoRepo struct {
	videos map[string]*models.Video
}

func (r *stubVideoRepo) UpsertVideo(_ context.Context, video *models.Video) error {
	r.videos[video.VideoID] = video
	return nil
}

func (r *stubVideoRepo) GetByVideoID(_ context.Context, videoID string) (*models.Video, error) {
	video, ok := r.videos[videoID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return video, nil
}

func (r *stubVideoRepo) ListActive(context.Context) ([]*models.Video, error) {
	var out []*models.Video
	for _, v := range r.videos {
		if v.IsActive {
			out = append(out, v)
		}
	}
	return out, nil
}
func (r *stubVideoRepo) CountActiveByUser(context.Context, int64) (int, error) { return 0, nil }
func (r *stubVideoRepo) Deactivate(context.Context, string) error              { return nil }
func (r *stubVideoRepo) DeleteInactiveBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubSnapshotRepo struct {
	reports  map[int64][]*models.ReportEntry
	recorded []*models.MonthlyView
}

func (r *stubSnapshotRepo) RecordSnapshot(_ context.Context, s *models.MonthlyView) error {
	r.recorded = append(r.recorded, s)
	return nil
}
func (r *stubSnapshotRepo) GetSnapshot(context.Context, int64, int, int) (*models.MonthlyView, error) {
	return nil, db.ErrNotFound
}
func (r *stubSnapshotRepo) HasSnapshot(context.Context, int64, int, int) (bool, error) {
	return false, nil
}

func (r *stubSnapshotRepo) GetUserReport(_ context.Context, userID int64, _, _ int) ([]*models.ReportEntry, error) {
	return r.reports[userID], nil
}

func (r *stubSnapshotRepo) DeleteBefore(context.Context, int, int) (int64, error) { return 0, nil }

type stubYouTube struct {
	videos map[string]*youtube.Video
}

func (c *stubYouTube) FetchChannel(context.Context, string) (*youtube.Channel, error) {
	return nil, youtube.ErrNotFound
}

func (c *stubYouTube) FetchVideo(_ context.Context, videoID string) (*youtube.Video, error) {
	video, ok := c.videos[videoID]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return video, nil
}

func (c *stubYouTube) ListChannelVideos(context.Context, string, string) (*youtube.VideoPage, error) {
	return &youtube.VideoPage{}, nil
}

func (c *stubYouTube) ResolveChannelID(context.Context, validation.ChannelRef) (string, error) {
	return "", youtube.ErrNotFound
}

type env struct {
	router *gin.Engine
	users  *stubUserRepo
	videos *stubVideoRepo
	snaps  *stubSnapshotRepo
	yt     *stubYouTube
	sched  *scheduler.Scheduler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		users:  &stubUserRepo{users: make(map[string]*models.User)},
		videos: &stubVideoRepo{videos: make(map[string]*models.Video)},
		snaps:  &stubSnapshotRepo{reports: make(map[int64][]*models.ReportEntry)},
		yt:     &stubYouTube{videos: make(map[string]*youtube.Video)},
		sched:  scheduler.New(2, time.Second),
	}

	channels := &stubChannelRepo{}
	c := cache.New(nil)
	verifier := verification.NewService(channels, e.yt, c, 3)

	svc := tracker.NewService(e.users, channels, e.videos, e.snaps,
		e.yt, c, verifier, nil, tracker.Config{
			MaxVideosPerUser: 10,
			VideoCacheTTL:    time.Minute,
			ChannelCacheTTL:  time.Minute,
		})

	admin := NewAdminHandler(svc, e.sched)
	e.router = NewRouter(NewHealthHandler(nil, nil, nil), admin)
	return e
}

func (e *env) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestLivenessProbe(t *testing.T) {
	e := newEnv(t)

	rec := e.request(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UP", body["status"])
}

func TestTriggerSync(t *testing.T) {
	t.Run("runs a registered job", func(t *testing.T) {
		e := newEnv(t)
		ran := false
		require.NoError(t, e.sched.Register(scheduler.Job{
			Name:     "stat_refresh",
			Interval: time.Hour,
			Run: func(context.Context) error {
				ran = true
				return nil
			},
		}))

		rec := e.request(http.MethodPost, "/sync", gin.H{"job": "stat_refresh"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, ran)
	})

	t.Run("missing job name lists the registered jobs", func(t *testing.T) {
		e := newEnv(t)
		require.NoError(t, e.sched.Register(scheduler.Job{
			Name:     "cleanup",
			Interval: time.Hour,
			Run:      func(context.Context) error { return nil },
		}))

		rec := e.request(http.MethodPost, "/sync", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Jobs []string `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Jobs, "cleanup")
	})

	t.Run("unknown job is unprocessable", func(t *testing.T) {
		e := newEnv(t)
		rec := e.request(http.MethodPost, "/sync", gin.H{"job": "nope"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestBackfill(t *testing.T) {
	e := newEnv(t)
	video := models.NewVideo(1, "dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	video.ID = 1
	video.ViewCount = 5000
	video.CreatedAt = time.Now().UTC().AddDate(0, -3, 0)
	e.videos.videos[video.VideoID] = video

	rec := e.request(http.MethodPost, "/backfill", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, e.snaps.recorded, 1)
	assert.Equal(t, int64(5000), e.snaps.recorded[0].Views)
}

func TestVideoStats(t *testing.T) {
	t.Run("returns refreshed statistics", func(t *testing.T) {
		e := newEnv(t)
		video := models.NewVideo(1, "dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
		video.ApplyStats(100, 5, 1, time.Now().UTC().Add(-time.Hour))
		e.videos.videos[video.VideoID] = video
		e.yt.videos[video.VideoID] = &youtube.Video{
			ID:        video.VideoID,
			Title:     "never gonna",
			ViewCount: 250,
		}

		rec := e.request(http.MethodGet, "/videos/dQw4w9WgXcQ/stats", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			ViewCount int64 `json:"ViewCount"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(250), body.ViewCount)
	})

	t.Run("untracked video is not found", func(t *testing.T) {
		e := newEnv(t)
		rec := e.request(http.MethodGet, "/videos/dQw4w9WgXcQ/stats", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMonthlyReport(t *testing.T) {
	t.Run("returns the user's entries", func(t *testing.T) {
		e := newEnv(t)
		e.users.users["discord-1"] = &models.User{ID: 7, DiscordUserID: "discord-1"}
		e.snaps.reports[7] = []*models.ReportEntry{
			{UserID: 7, Year: 2026, Month: 7, Views: 1300, ViewsChange: 300, VideoID: "dQw4w9WgXcQ"},
		}

		rec := e.request(http.MethodGet, "/reports/discord-1/2026/7", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Entries []models.ReportEntry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Entries, 1)
		assert.Equal(t, int64(300), body.Entries[0].ViewsChange)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		e := newEnv(t)
		rec := e.request(http.MethodGet, "/reports/ghost/2026/7", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects a month outside the calendar", func(t *testing.T) {
		e := newEnv(t)
		e.users.users["discord-1"] = &models.User{ID: 7, DiscordUserID: "discord-1"}
		rec := e.request(http.MethodGet, "/reports/discord-1/2026/13", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty month returns an empty list", func(t *testing.T) {
		e := newEnv(t)
		e.users.users["discord-1"] = &models.User{ID: 7, DiscordUserID: "discord-1"}

		rec := e.request(http.MethodGet, "/reports/discord-1/2026/6", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Entries []models.ReportEntry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Empty(t, body.Entries)
	})
}
