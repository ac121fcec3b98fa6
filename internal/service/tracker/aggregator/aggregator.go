package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/db/repository"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// Aggregator closes monthly view snapshots. A month is closed once per video:
// the snapshot records the cumulative view count at close time and the change
// against the prior month's snapshot.
type Aggregator struct {
	videos    repository.VideoRepository
	snapshots repository.MonthlyViewRepository
	log       *zap.Logger
}

// UserSummary totals one user's freshly closed month.
type UserSummary struct {
	UserID      int64
	Year        int
	Month       int
	Videos      int
	TotalViews  int64
	TotalChange int64
}

// New creates an Aggregator.
func New(videos repository.VideoRepository, snapshots repository.MonthlyViewRepository) *Aggregator {
	return &Aggregator{
		videos:    videos,
		snapshots: snapshots,
		log:       logger.Named("aggregator"),
	}
}

// CloseMonth writes snapshots for the month preceding now, for every active
// video that was tracked during that month and does not have one yet. With
// backfill set, existing snapshots are recomputed from current data instead of
// being skipped. It returns per-user
// summaries of the videos actually written.
func (a *Aggregator) CloseMonth(ctx context.Context, now time.Time, backfill bool) ([]UserSummary, error) {
	year, month := models.PreviousMonth(now.Year(), int(now.Month()))
	// Exclusive end of the month being closed.
	monthEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	videos, err := a.videos.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list videos for month close: %w", err)
	}

	summaries := make(map[int64]*UserSummary)
	written := 0

	for _, video := range videos {
		// A video first tracked after the closed month ended has no history in
		// it; its first snapshot waits for its own month to close.
		if !video.CreatedAt.Before(monthEnd) {
			continue
		}

		if !backfill {
			exists, err := a.snapshots.HasSnapshot(ctx, video.ID, year, month)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
		}

		change, err := a.changeSince(ctx, video, year, month)
		if err != nil {
			return nil, err
		}

		snapshot := models.NewMonthlyView(video.UserID, video.ID, year, month, video.ViewCount, change)
		if err := a.snapshots.RecordSnapshot(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("close month for video %s: %w", video.VideoID, err)
		}
		written++

		s, ok := summaries[video.UserID]
		if !ok {
			s = &UserSummary{UserID: video.UserID, Year: year, Month: month}
			summaries[video.UserID] = s
		}
		s.Videos++
		s.TotalViews += snapshot.Views
		s.TotalChange += snapshot.ViewsChange
	}

	a.log.Info("month close completed",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("snapshots", written),
		zap.Bool("backfill", backfill))

	out := make([]UserSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// changeSince computes the view delta against the month before (year, month).
// A video with no prior snapshot is in its first tracked month and reports a
// change of zero.
func (a *Aggregator) changeSince(ctx context.Context, video *models.Video, year, month int) (int64, error) {
	prevYear, prevMonth := models.PreviousMonth(year, month)

	prior, err := a.snapshots.GetSnapshot(ctx, video.ID, prevYear, prevMonth)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("prior snapshot for video %s: %w", video.VideoID, err)
	}

	return video.ViewCount - prior.Views, nil
}
