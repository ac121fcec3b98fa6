package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/db/repository"
	"github.com/databot/youtube-tracker/internal/notify"
	"github.com/databot/youtube-tracker/internal/service/cache"
	"github.com/databot/youtube-tracker/internal/service/tracker/aggregator"
	"github.com/databot/youtube-tracker/internal/service/verification"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/internal/validation"
	"github.com/databot/youtube-tracker/pkg/logger"
)

var (
	// ErrVideoLimitReached indicates the user is at their tracked-video cap.
	ErrVideoLimitReached = errors.New("tracked video limit reached")

	// ErrNotOwner indicates the entity belongs to a different user.
	ErrNotOwner = errors.New("entity belongs to another user")
)

// Config carries the tracking policy knobs.
type Config struct {
	MaxVideosPerUser        int
	VideoCacheTTL           time.Duration
	ChannelCacheTTL         time.Duration
	SnapshotRetentionMonths int
}

// Service implements the tracking operations behind the Discord command
// surface and the periodic jobs.
type Service struct {
	users     repository.UserRepository
	channels  repository.ChannelRepository
	videos    repository.VideoRepository
	snapshots repository.MonthlyViewRepository
	client    youtube.Client
	cache     *cache.Cache
	verifier  *verification.Service
	publisher notify.Publisher
	agg       *aggregator.Aggregator
	cfg       Config
	log       *zap.Logger
}

// NewService wires a tracker Service.
func NewService(
	users repository.UserRepository,
	channels repository.ChannelRepository,
	videos repository.VideoRepository,
	snapshots repository.MonthlyViewRepository,
	client youtube.Client,
	c *cache.Cache,
	verifier *verification.Service,
	publisher notify.Publisher,
	cfg Config,
) *Service {
	return &Service{
		users:     users,
		channels:  channels,
		videos:    videos,
		snapshots: snapshots,
		client:    client,
		cache:     c,
		verifier:  verifier,
		publisher: publisher,
		agg:       aggregator.New(videos, snapshots),
		cfg:       cfg,
		log:       logger.Named("tracker"),
	}
}

// RequestVerification registers a channel claim for the user and issues a
// verification code. An existing claim for the same channel keeps its state
// and code. The returned channel carries the code to show the user.
func (s *Service) RequestVerification(ctx context.Context, discordUserID, discordUsername, channelURL string, mode models.VerificationMode) (*models.Channel, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid verification mode %q", mode)
	}

	ref, err := validation.ParseChannelRef(channelURL)
	if err != nil {
		return nil, err
	}

	channelID, err := s.client.ResolveChannelID(ctx, ref)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(discordUserID, discordUsername)
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	code, err := verification.GenerateCode()
	if err != nil {
		return nil, err
	}

	channel := models.NewChannel(user.ID, channelID,
		"https://www.youtube.com/channel/"+channelID, code, mode)
	channel.VerificationState = models.StatePendingCheck
	if metadata, err := s.fetchChannelInfo(ctx, channelID); err == nil {
		channel.ChannelName = &metadata.Title
	}

	if err := s.channels.UpsertChannel(ctx, channel); err != nil {
		return nil, err
	}
	if channel.UserID != user.ID {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotOwner)
	}

	// A claim that was rejected or archived starts over with a fresh code.
	if channel.VerificationState == models.StateRejected {
		if err := s.verifier.Reset(ctx, channel); err != nil {
			return nil, err
		}
		channel.VerificationState = models.StatePendingCheck
		if err := s.channels.UpdateVerification(ctx, channel); err != nil {
			return nil, err
		}
	}

	s.log.Info("verification requested",
		zap.String("discord_user_id", discordUserID),
		zap.String("channel_id", channelID),
		zap.String("mode", string(mode)))

	return channel, nil
}

// ConfirmVerification runs an on-demand ownership check for the user's claim,
// persists the transition, and publishes the outcome.
func (s *Service) ConfirmVerification(ctx context.Context, discordUserID, channelID string) (*models.Channel, error) {
	user, err := s.users.GetByDiscordID(ctx, discordUserID)
	if err != nil {
		return nil, err
	}

	channel, err := s.channels.GetByChannelID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.UserID != user.ID {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotOwner)
	}

	_, checkErr := s.verifier.Check(ctx, channel)
	if checkErr != nil && !errors.Is(checkErr, verification.ErrVerificationFailed) {
		return nil, checkErr
	}

	s.publishVerificationResult(ctx, discordUserID, channel)
	return channel, checkErr
}

// TrackVideo adds a video to the user's tracked set, seeded with current
// provider statistics. The per-user cap is enforced before any provider call.
func (s *Service) TrackVideo(ctx context.Context, discordUserID, discordUsername, videoURL string) (*models.Video, error) {
	videoID, err := validation.ParseVideoID(videoURL)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(discordUserID, discordUsername)
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	count, err := s.videos.CountActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if count >= s.cfg.MaxVideosPerUser {
		return nil, fmt.Errorf("user %s has %d tracked videos: %w",
			discordUserID, count, ErrVideoLimitReached)
	}

	info, err := s.fetchVideoInfo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	video := models.NewVideo(user.ID, videoID, "https://www.youtube.com/watch?v="+videoID)
	video.Title = &info.Title
	if info.Description != "" {
		video.Description = &info.Description
	}
	if info.ThumbnailURL != "" {
		video.ThumbnailURL = &info.ThumbnailURL
	}
	if !info.PublishedAt.IsZero() {
		published := info.PublishedAt
		video.PublishedAt = &published
	}
	video.ApplyStats(info.ViewCount, info.LikeCount, info.CommentCount, time.Now().UTC())

	// Link the video to its channel when the uploading channel is a verified
	// claim in the system.
	if channel, err := s.channels.GetByChannelID(ctx, info.ChannelID); err == nil && channel.IsVerified {
		video.ChannelPK = &channel.ID
	}

	if err := s.videos.UpsertVideo(ctx, video); err != nil {
		return nil, err
	}

	s.log.Info("video tracked",
		zap.String("discord_user_id", discordUserID),
		zap.String("video_id", videoID))

	return video, nil
}

// UntrackVideo soft-deactivates one of the user's tracked videos. History is
// retained.
func (s *Service) UntrackVideo(ctx context.Context, discordUserID, videoURL string) error {
	videoID, err := validation.ParseVideoID(videoURL)
	if err != nil {
		return err
	}

	user, err := s.users.GetByDiscordID(ctx, discordUserID)
	if err != nil {
		return err
	}

	video, err := s.videos.GetByVideoID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.UserID != user.ID {
		return fmt.Errorf("video %s: %w", videoID, ErrNotOwner)
	}

	return s.videos.Deactivate(ctx, videoID)
}

// GetStats returns a tracked video with statistics refreshed through the
// cache. A provider failure falls back to the stored statistics.
func (s *Service) GetStats(ctx context.Context, videoID string) (*models.Video, error) {
	video, err := s.videos.GetByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	info, err := s.fetchVideoInfo(ctx, videoID)
	if err != nil {
		if errors.Is(err, youtube.ErrNotFound) {
			return nil, err
		}
		s.log.Warn("stats refresh failed, serving stored statistics",
			zap.String("video_id", videoID), zap.Error(err))
		return video, nil
	}

	video.ApplyStats(info.ViewCount, info.LikeCount, info.CommentCount, time.Now().UTC())
	if err := s.videos.UpsertVideo(ctx, video); err != nil {
		return nil, err
	}

	return video, nil
}

// GetMonthlyReport returns the user's closed report for the given month.
func (s *Service) GetMonthlyReport(ctx context.Context, discordUserID string, year, month int) ([]*models.ReportEntry, error) {
	user, err := s.users.GetByDiscordID(ctx, discordUserID)
	if err != nil {
		return nil, err
	}

	return s.snapshots.GetUserReport(ctx, user.ID, year, month)
}

// fetchVideoInfo reads a video through the cache.
func (s *Service) fetchVideoInfo(ctx context.Context, videoID string) (*youtube.Video, error) {
	return cache.GetOrFetch(ctx, s.cache, "yt:video:"+videoID, s.cfg.VideoCacheTTL,
		func(ctx context.Context) (*youtube.Video, error) {
			return s.client.FetchVideo(ctx, videoID)
		})
}

// fetchChannelInfo reads a channel through the cache.
func (s *Service) fetchChannelInfo(ctx context.Context, channelID string) (*youtube.Channel, error) {
	return cache.GetOrFetch(ctx, s.cache, verification.ChannelCacheKey(channelID), s.cfg.ChannelCacheTTL,
		func(ctx context.Context) (*youtube.Channel, error) {
			return s.client.FetchChannel(ctx, channelID)
		})
}

func (s *Service) publishVerificationResult(ctx context.Context, discordUserID string, channel *models.Channel) {
	if s.publisher == nil {
		return
	}

	name := ""
	if channel.ChannelName != nil {
		name = *channel.ChannelName
	}
	err := s.publisher.PublishVerificationResult(ctx, notify.VerificationResult{
		DiscordUserID: discordUserID,
		ChannelID:     channel.ChannelID,
		ChannelName:   name,
		Verified:      channel.IsVerified,
		State:         string(channel.VerificationState),
	})
	if err != nil {
		s.log.Warn("could not publish verification result",
			zap.String("channel_id", channel.ChannelID), zap.Error(err))
	}
}

// resolveNotFound marks a locally tracked video inactive after the provider
// reports it gone.
func (s *Service) resolveNotFound(ctx context.Context, videoID string) {
	if err := s.videos.Deactivate(ctx, videoID); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.log.Warn("could not deactivate vanished video",
			zap.String("video_id", videoID), zap.Error(err))
	} else {
		s.log.Info("video vanished at provider, deactivated",
			zap.String("video_id", videoID))
	}
}
