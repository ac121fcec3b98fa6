// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	YouTube  YouTubeConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Server   ServerConfig
	Jobs     JobsConfig
	Tracking TrackingConfig
}

// ServerConfig contains the admin HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// RedisConfig contains the cache store configuration.
type RedisConfig struct {
	URL string
}

// RabbitMQConfig contains RabbitMQ connection and queue configuration for
// the command-surface notification bus.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// YouTubeConfig contains the external data provider configuration: API key,
// quota budget and window, and the retry policy for transient failures.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	APIKey          string
	DailyQuota      int
	WindowBudget    int
	Window          time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	VideoCacheTTL   time.Duration
	ChannelCacheTTL time.Duration
}

// JobsConfig contains the periodic job intervals and worker bounds.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type JobsConfig struct {
	StatRefreshInterval     time.Duration
	ChannelSyncInterval     time.Duration
	DiscoveryInterval       time.Duration
	MonthlyReportInterval   time.Duration
	CleanupInterval         time.Duration
	MaxConcurrent           int64
	JobTimeout              time.Duration
	SnapshotRetentionMonths int
}

// TrackingConfig contains per-user tracking limits and verification policy.
type TrackingConfig struct {
	MaxVideosPerUser     int
	VerificationAttempts int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "youtubetracker")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 5)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	// RabbitMQ
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "tracker.events")
	viper.SetDefault("rabbitmq.queue", "tracker.events.out")
	viper.SetDefault("rabbitmq.routingkey", "tracker.notify")

	// YouTube / quota. Window budget and retry policy are tunables, not
	// provider constants; the daily quota matches the API v3 default.
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.dailyquota", 10000)
	viper.SetDefault("youtube.windowbudget", 100)
	viper.SetDefault("youtube.window", time.Minute)
	viper.SetDefault("youtube.maxattempts", 4)
	viper.SetDefault("youtube.backoffbase", 500*time.Millisecond)
	viper.SetDefault("youtube.videocachettl", 2*time.Hour)
	viper.SetDefault("youtube.channelcachettl", 15*time.Minute)

	// Jobs
	viper.SetDefault("jobs.statrefreshinterval", 2*time.Hour)
	viper.SetDefault("jobs.channelsyncinterval", 6*time.Hour)
	viper.SetDefault("jobs.discoveryinterval", 4*time.Hour)
	viper.SetDefault("jobs.monthlyreportinterval", 24*time.Hour)
	viper.SetDefault("jobs.cleanupinterval", 7*24*time.Hour)
	viper.SetDefault("jobs.maxconcurrent", 4)
	viper.SetDefault("jobs.jobtimeout", 25*time.Minute)
	viper.SetDefault("jobs.snapshotretentionmonths", 24)

	// Tracking
	viper.SetDefault("tracking.maxvideosperuser", 100)
	viper.SetDefault("tracking.verificationattempts", 5)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
