package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, 10000, cfg.YouTube.DailyQuota)
	assert.Equal(t, 100, cfg.YouTube.WindowBudget)
	assert.Equal(t, time.Minute, cfg.YouTube.Window)
	assert.Equal(t, 4, cfg.YouTube.MaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.YouTube.VideoCacheTTL)

	assert.Equal(t, 2*time.Hour, cfg.Jobs.StatRefreshInterval)
	assert.Equal(t, 6*time.Hour, cfg.Jobs.ChannelSyncInterval)
	assert.Equal(t, 4*time.Hour, cfg.Jobs.DiscoveryInterval)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.MonthlyReportInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.CleanupInterval)
	assert.Equal(t, int64(4), cfg.Jobs.MaxConcurrent)

	assert.Equal(t, 100, cfg.Tracking.MaxVideosPerUser)
	assert.Equal(t, 5, cfg.Tracking.VerificationAttempts)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("APP_TRACKING_MAXVIDEOSPERUSER", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Tracking.MaxVideosPerUser)
}
