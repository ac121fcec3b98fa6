package youtube

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/databot/youtube-tracker/internal/metrics"
	"github.com/databot/youtube-tracker/internal/service/quota"
	"github.com/databot/youtube-tracker/internal/validation"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// ErrNotFound indicates the provider has no such channel or video.
var ErrNotFound = errors.New("youtube: not found")

// Channel is the provider-side view of a channel.
type Channel struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	SubscriberCount uint64    `json:"subscriber_count"`
	VideoCount      uint64    `json:"video_count"`
	ViewCount       uint64    `json:"view_count"`
	PublishedAt     time.Time `json:"published_at"`
}

// Video is the provider-side view of a video with its cumulative statistics.
type Video struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	PublishedAt  time.Time `json:"published_at"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
}

// VideoPage is one page of a channel's uploads.
type VideoPage struct {
	Videos        []*Video `json:"videos"`
	NextPageToken string   `json:"next_page_token"`
}

// Client fetches channel and video data from the provider. Every call is
// quota-accounted and retried on transient failure; no call mutates local
// state.
type Client interface {
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	FetchVideo(ctx context.Context, videoID string) (*Video, error)
	ListChannelVideos(ctx context.Context, channelID, pageToken string) (*VideoPage, error)
	ResolveChannelID(ctx context.Context, ref validation.ChannelRef) (string, error)
}

type client struct {
	svc         *yt.Service
	guard       *quota.Guard
	maxAttempts uint64
	backoffBase time.Duration
	log         *zap.Logger
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, guard *quota.Guard, maxAttempts int, backoffBase time.Duration) (Client, error) {
	svc, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &client{
		svc:         svc,
		guard:       guard,
		maxAttempts: uint64(maxAttempts),
		backoffBase: backoffBase,
		log:         logger.Named("youtube"),
	}, nil
}

// IsTransient reports whether err is worth retrying: rate limiting, server
// errors, and network failures. Context cancellation and client errors are
// permanent.
func IsTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// call acquires quota, runs fn, and retries transient failures with
// exponential backoff up to the attempt ceiling.
func (c *client) call(ctx context.Context, op string, cost quota.Cost, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	if c.backoffBase > 0 {
		bo.InitialInterval = c.backoffBase
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxAttempts-1), ctx)

	return backoff.Retry(func() error {
		if err := c.guard.Acquire(ctx, cost); err != nil {
			return backoff.Permanent(err)
		}
		metrics.QuotaUnits.WithLabelValues(op).Add(float64(cost))

		err := fn()
		if err == nil {
			metrics.APICalls.WithLabelValues(op, "ok").Inc()
			return nil
		}
		if IsTransient(err) {
			metrics.APICalls.WithLabelValues(op, "transient").Inc()
			c.log.Warn("transient provider failure, will retry",
				zap.String("operation", op), zap.Error(err))
			return err
		}
		metrics.APICalls.WithLabelValues(op, "error").Inc()
		return backoff.Permanent(err)
	}, policy)
}

func (c *client) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	var resp *yt.ChannelListResponse

	err := c.call(ctx, "channels.list", quota.CostChannel, func() error {
		var err error
		resp, err = c.svc.Channels.List([]string{"snippet", "statistics"}).
			Id(channelID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, mapProviderError(err, "fetch channel")
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	return channelFromItem(resp.Items[0]), nil
}

func (c *client) FetchVideo(ctx context.Context, videoID string) (*Video, error) {
	var resp *yt.VideoListResponse

	err := c.call(ctx, "videos.list", quota.CostStats, func() error {
		var err error
		resp, err = c.svc.Videos.List([]string{"snippet", "statistics"}).
			Id(videoID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, mapProviderError(err, "fetch video")
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	return videoFromItem(resp.Items[0]), nil
}

func (c *client) ListChannelVideos(ctx context.Context, channelID, pageToken string) (*VideoPage, error) {
	// The uploads playlist of a channel shares its suffix with the channel ID.
	playlistID := "UU" + strings.TrimPrefix(channelID, "UC")

	var resp *yt.PlaylistItemListResponse
	err := c.call(ctx, "playlistItems.list", quota.CostList, func() error {
		call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).MaxResults(50).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, mapProviderError(err, "list channel videos")
	}

	page := &VideoPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.ContentDetails == nil {
			continue
		}
		v := &Video{
			ID:          item.ContentDetails.VideoId,
			ChannelID:   channelID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
		}
		if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
			v.PublishedAt = t
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
			v.ThumbnailURL = item.Snippet.Thumbnails.High.Url
		}
		page.Videos = append(page.Videos, v)
	}

	return page, nil
}

func (c *client) ResolveChannelID(ctx context.Context, ref validation.ChannelRef) (string, error) {
	if ref.Resolved() {
		return ref.ID, nil
	}
	if ref.Handle == "" {
		return "", ErrNotFound
	}

	// Cheap lookups first: handle, then legacy username. Search is the
	// expensive last resort.
	if id, err := c.lookupChannelID(ctx, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForHandle("@" + ref.Handle)
	}); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if id, err := c.lookupChannelID(ctx, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForUsername(ref.Handle)
	}); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	var resp *yt.SearchListResponse
	err := c.call(ctx, "search.list", quota.CostSearch, func() error {
		var err error
		resp, err = c.svc.Search.List([]string{"snippet"}).
			Q("@" + ref.Handle).Type("channel").MaxResults(1).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", mapProviderError(err, "resolve channel")
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return "", ErrNotFound
	}

	return resp.Items[0].Snippet.ChannelId, nil
}

func (c *client) lookupChannelID(ctx context.Context, modify func(*yt.ChannelsListCall) *yt.ChannelsListCall) (string, error) {
	var resp *yt.ChannelListResponse

	err := c.call(ctx, "channels.list", quota.CostChannel, func() error {
		call := c.svc.Channels.List([]string{"id"}).Context(ctx)
		var err error
		resp, err = modify(call).Do()
		return err
	})
	if err != nil {
		return "", mapProviderError(err, "resolve channel")
	}
	if len(resp.Items) == 0 {
		return "", ErrNotFound
	}

	return resp.Items[0].Id, nil
}

func channelFromItem(item *yt.Channel) *Channel {
	ch := &Channel{ID: item.Id}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		ch.Description = item.Snippet.Description
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			ch.PublishedAt = t
		}
	}
	if item.Statistics != nil {
		ch.SubscriberCount = item.Statistics.SubscriberCount
		ch.VideoCount = item.Statistics.VideoCount
		ch.ViewCount = item.Statistics.ViewCount
	}
	return ch
}

func videoFromItem(item *yt.Video) *Video {
	v := &Video{ID: item.Id}
	if item.Snippet != nil {
		v.ChannelID = item.Snippet.ChannelId
		v.Title = item.Snippet.Title
		v.Description = item.Snippet.Description
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			v.PublishedAt = t
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
			v.ThumbnailURL = item.Snippet.Thumbnails.High.Url
		}
	}
	if item.Statistics != nil {
		v.ViewCount = int64(item.Statistics.ViewCount)
		v.LikeCount = int64(item.Statistics.LikeCount)
		v.CommentCount = int64(item.Statistics.CommentCount)
	}
	return v
}

func mapProviderError(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
