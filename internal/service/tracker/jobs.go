package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/notify"
	"github.com/databot/youtube-tracker/internal/service/quota"
	"github.com/databot/youtube-tracker/internal/service/verification"
	"github.com/databot/youtube-tracker/internal/service/youtube"
)

// maxDiscoveryPages bounds how deep one discovery pass pages into a channel's
// uploads, keeping the per-run quota spend predictable.
const maxDiscoveryPages = 3

// inactiveVideoRetention is how long soft-deactivated videos are kept before
// cleanup removes them and their snapshot history.
const inactiveVideoRetention = 90 * 24 * time.Hour

// RefreshStats updates statistics for every active video, oldest observation
// first. Quota exhaustion ends the pass early; it resumes where it left off on
// the next run because ordering follows last_updated_at.
func (s *Service) RefreshStats(ctx context.Context) error {
	videos, err := s.videos.ListActive(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, video := range videos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, err := s.client.FetchVideo(ctx, video.VideoID)
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			s.log.Info("stat refresh deferred on quota",
				zap.Int("refreshed", refreshed), zap.Int("remaining", len(videos)-refreshed))
			return nil
		case errors.Is(err, youtube.ErrNotFound):
			s.resolveNotFound(ctx, video.VideoID)
			continue
		case err != nil:
			s.log.Warn("stat refresh failed for video",
				zap.String("video_id", video.VideoID), zap.Error(err))
			continue
		}

		video.ApplyStats(info.ViewCount, info.LikeCount, info.CommentCount, time.Now().UTC())
		if err := s.videos.UpsertVideo(ctx, video); err != nil {
			s.log.Warn("could not persist refreshed statistics",
				zap.String("video_id", video.VideoID), zap.Error(err))
			continue
		}
		refreshed++
	}

	s.log.Info("stat refresh completed", zap.Int("refreshed", refreshed))
	return nil
}

// SyncChannels re-checks pending ownership claims and refreshes metadata for
// verified channels. A channel gone at the provider is deactivated.
func (s *Service) SyncChannels(ctx context.Context) error {
	if err := s.checkPendingChannels(ctx); err != nil {
		return err
	}

	channels, err := s.channels.ListSyncCandidates(ctx, nil)
	if err != nil {
		return err
	}

	for _, channel := range channels {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, err := s.client.FetchChannel(ctx, channel.ChannelID)
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			s.log.Info("channel sync deferred on quota")
			return nil
		case errors.Is(err, youtube.ErrNotFound):
			if err := s.channels.SetActive(ctx, channel.ID, false); err != nil {
				s.log.Warn("could not deactivate vanished channel",
					zap.String("channel_id", channel.ChannelID), zap.Error(err))
			}
			continue
		case err != nil:
			s.log.Warn("channel sync failed",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
			continue
		}

		channel.ChannelName = &info.Title
		if err := s.channels.UpsertChannel(ctx, channel); err != nil {
			s.log.Warn("could not persist channel metadata",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
			continue
		}
		if err := s.channels.TouchSync(ctx, channel.ID, time.Now().UTC()); err != nil {
			s.log.Warn("could not record channel sync",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
		}
	}

	return nil
}

func (s *Service) checkPendingChannels(ctx context.Context) error {
	pending, err := s.channels.ListPendingCheck(ctx, 100)
	if err != nil {
		return err
	}

	for _, channel := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		before := channel.VerificationState
		_, err := s.verifier.Check(ctx, channel)
		if err != nil && !errors.Is(err, verification.ErrVerificationFailed) {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				return nil
			}
			s.log.Warn("verification check errored",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
			continue
		}

		// Notify only on terminal transitions; silent retries would spam the
		// command surface.
		if channel.VerificationState != before && channel.VerificationState.Terminal() {
			if user, uerr := s.users.GetByID(ctx, channel.UserID); uerr == nil {
				s.publishVerificationResult(ctx, user.DiscordUserID, channel)
			}
		}
	}

	return nil
}

// DiscoverVideos walks the uploads of automatically verified channels and
// starts tracking videos it has not seen, up to the owner's cap.
func (s *Service) DiscoverVideos(ctx context.Context) error {
	mode := models.VerificationAutomatic
	channels, err := s.channels.ListSyncCandidates(ctx, &mode)
	if err != nil {
		return err
	}

	for _, channel := range channels {
		if err := s.discoverChannel(ctx, channel); err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				s.log.Info("video discovery deferred on quota")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("discovery failed for channel",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
		}
	}

	return nil
}

func (s *Service) discoverChannel(ctx context.Context, channel *models.Channel) error {
	user, err := s.users.GetByID(ctx, channel.UserID)
	if err != nil {
		return err
	}

	count, err := s.videos.CountActiveByUser(ctx, channel.UserID)
	if err != nil {
		return err
	}

	pageToken := ""
	for page := 0; page < maxDiscoveryPages; page++ {
		listing, err := s.client.ListChannelVideos(ctx, channel.ChannelID, pageToken)
		if err != nil {
			return err
		}

		for _, upload := range listing.Videos {
			if count >= s.cfg.MaxVideosPerUser {
				s.log.Info("discovery stopped at video cap",
					zap.String("channel_id", channel.ChannelID))
				return nil
			}

			_, err := s.videos.GetByVideoID(ctx, upload.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, db.ErrNotFound) {
				return err
			}

			if err := s.trackDiscovered(ctx, user, channel, upload); err != nil {
				return err
			}
			count++
		}

		if listing.NextPageToken == "" {
			break
		}
		pageToken = listing.NextPageToken
	}

	return nil
}

func (s *Service) trackDiscovered(ctx context.Context, user *models.User, channel *models.Channel, upload *youtube.Video) error {
	// The playlist listing has no statistics; fetch them for the initial
	// snapshot.
	info, err := s.client.FetchVideo(ctx, upload.ID)
	if err != nil {
		if errors.Is(err, youtube.ErrNotFound) {
			return nil
		}
		return err
	}

	video := models.NewVideo(channel.UserID, upload.ID, "https://www.youtube.com/watch?v="+upload.ID)
	video.ChannelPK = &channel.ID
	video.Title = &info.Title
	if info.ThumbnailURL != "" {
		video.ThumbnailURL = &info.ThumbnailURL
	}
	if !info.PublishedAt.IsZero() {
		published := info.PublishedAt
		video.PublishedAt = &published
	}
	video.ApplyStats(info.ViewCount, info.LikeCount, info.CommentCount, time.Now().UTC())

	if err := s.videos.UpsertVideo(ctx, video); err != nil {
		return err
	}

	if s.publisher != nil {
		err := s.publisher.PublishVideoDiscovered(ctx, notify.VideoDiscovered{
			DiscordUserID: user.DiscordUserID,
			ChannelID:     channel.ChannelID,
			VideoID:       video.VideoID,
			Title:         info.Title,
		})
		if err != nil {
			s.log.Warn("could not publish discovery event",
				zap.String("video_id", video.VideoID), zap.Error(err))
		}
	}

	s.log.Info("video discovered",
		zap.String("channel_id", channel.ChannelID),
		zap.String("video_id", video.VideoID))
	return nil
}

// EvaluateMonthly closes the previous month's snapshots and announces the
// finished reports.
func (s *Service) EvaluateMonthly(ctx context.Context) error {
	summaries, err := s.agg.CloseMonth(ctx, time.Now().UTC(), false)
	if err != nil {
		return err
	}

	for _, summary := range summaries {
		user, err := s.users.GetByID(ctx, summary.UserID)
		if err != nil {
			s.log.Warn("report owner lookup failed",
				zap.Int64("user_id", summary.UserID), zap.Error(err))
			continue
		}

		if s.publisher == nil {
			continue
		}
		err = s.publisher.PublishReportReady(ctx, notify.ReportReady{
			DiscordUserID: user.DiscordUserID,
			Year:          summary.Year,
			Month:         summary.Month,
			Videos:        summary.Videos,
			TotalViews:    summary.TotalViews,
			TotalChange:   summary.TotalChange,
		})
		if err != nil {
			s.log.Warn("could not publish report event",
				zap.String("discord_user_id", user.DiscordUserID), zap.Error(err))
		}
	}

	return nil
}

// BackfillMonth recomputes the previous month's snapshots from current data.
func (s *Service) BackfillMonth(ctx context.Context) error {
	_, err := s.agg.CloseMonth(ctx, time.Now().UTC(), true)
	return err
}

// Cleanup removes snapshots past the retention horizon and long-deactivated
// videos.
func (s *Service) Cleanup(ctx context.Context) error {
	now := time.Now().UTC()

	horizon := now.AddDate(0, -s.cfg.SnapshotRetentionMonths, 0)
	snapshots, err := s.snapshots.DeleteBefore(ctx, horizon.Year(), int(horizon.Month()))
	if err != nil {
		return fmt.Errorf("cleanup snapshots: %w", err)
	}

	videos, err := s.videos.DeleteInactiveBefore(ctx, now.Add(-inactiveVideoRetention))
	if err != nil {
		return fmt.Errorf("cleanup videos: %w", err)
	}

	s.log.Info("cleanup completed",
		zap.Int64("snapshots_removed", snapshots),
		zap.Int64("videos_removed", videos))
	return nil
}
