package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/config"
	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/repository"
	"github.com/databot/youtube-tracker/internal/handler"
	"github.com/databot/youtube-tracker/internal/metrics"
	"github.com/databot/youtube-tracker/internal/notify"
	"github.com/databot/youtube-tracker/internal/scheduler"
	"github.com/databot/youtube-tracker/internal/service/cache"
	"github.com/databot/youtube-tracker/internal/service/quota"
	"github.com/databot/youtube-tracker/internal/service/tracker"
	"github.com/databot/youtube-tracker/internal/service/verification"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// staleWindow is how long expired cache entries stay eligible for
// serve-on-provider-failure.
const staleWindow = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Named("main")
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, &db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(pool)
	metrics.RegisterPoolStats(pool)
	log.Info("database connected", zap.String("host", cfg.Database.Host))

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}
	store := cache.New(redisClient, cache.WithStaleOnError(staleWindow))

	guard := quota.NewGuard(
		int64(cfg.YouTube.WindowBudget),
		cfg.YouTube.Window,
		int64(cfg.YouTube.DailyQuota),
	)

	client, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, guard,
		cfg.YouTube.MaxAttempts, cfg.YouTube.BackoffBase)
	if err != nil {
		return fmt.Errorf("create youtube client: %w", err)
	}

	publisher, err := notify.NewAMQPPublisher(&cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	userRepo := repository.NewUserRepository(pool)
	channelRepo := repository.NewChannelRepository(pool)
	videoRepo := repository.NewVideoRepository(pool)
	snapshotRepo := repository.NewMonthlyViewRepository(pool)

	verifier := verification.NewService(channelRepo, client, store,
		cfg.Tracking.VerificationAttempts)

	svc := tracker.NewService(userRepo, channelRepo, videoRepo, snapshotRepo,
		client, store, verifier, publisher, tracker.Config{
			MaxVideosPerUser:        cfg.Tracking.MaxVideosPerUser,
			VideoCacheTTL:           cfg.YouTube.VideoCacheTTL,
			ChannelCacheTTL:         cfg.YouTube.ChannelCacheTTL,
			SnapshotRetentionMonths: cfg.Jobs.SnapshotRetentionMonths,
		})

	sched := scheduler.New(cfg.Jobs.MaxConcurrent, cfg.Jobs.JobTimeout)
	err = sched.Register(
		scheduler.Job{Name: "stat_refresh", Interval: cfg.Jobs.StatRefreshInterval, Run: svc.RefreshStats},
		scheduler.Job{Name: "channel_sync", Interval: cfg.Jobs.ChannelSyncInterval, Run: svc.SyncChannels},
		scheduler.Job{Name: "discovery", Interval: cfg.Jobs.DiscoveryInterval, Run: svc.DiscoverVideos},
		scheduler.Job{Name: "monthly_report", Interval: cfg.Jobs.MonthlyReportInterval, Run: svc.EvaluateMonthly},
		scheduler.Job{Name: "cleanup", Interval: cfg.Jobs.CleanupInterval, Run: svc.Cleanup},
	)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(
		handler.NewHealthHandler(pool, publisher, redisClient),
		handler.NewAdminHandler(svc, sched),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("admin server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("service stopped gracefully")
	return nil
}
