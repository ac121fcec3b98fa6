package models

import "time"

// Video represents a tracked YouTube video. The channel link is optional and
// survives channel removal (nullify-on-delete), so historical snapshot data
// is never orphaned.
type Video struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	ChannelPK     *int64     `db:"channel_pk"`
	VideoID       string     `db:"video_id"`
	URL           string     `db:"url"`
	Title         *string    `db:"title"`
	Description   *string    `db:"description"`
	ThumbnailURL  *string    `db:"thumbnail_url"`
	PublishedAt   *time.Time `db:"published_at"`
	IsActive      bool       `db:"is_active"`
	ViewCount     int64      `db:"view_count"`
	LikeCount     int64      `db:"like_count"`
	CommentCount  int64      `db:"comment_count"`
	LastUpdatedAt time.Time  `db:"last_updated_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// NewVideo creates a new tracked video owned by the given user.
func NewVideo(userID int64, videoID, url string) *Video {
	now := time.Now().UTC()
	return &Video{
		UserID:        userID,
		VideoID:       videoID,
		URL:           url,
		IsActive:      true,
		LastUpdatedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyStats overwrites the latest known statistics with an observation taken
// at observedAt. Callers must not pass observations older than
// LastUpdatedAt; the repository upsert additionally enforces this.
func (v *Video) ApplyStats(views, likes, comments int64, observedAt time.Time) {
	v.ViewCount = views
	v.LikeCount = likes
	v.CommentCount = comments
	v.LastUpdatedAt = observedAt
	v.UpdatedAt = time.Now().UTC()
}
