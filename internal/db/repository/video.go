package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
)

const videoColumns = `id, user_id, channel_pk, video_id, url, title, description,
	thumbnail_url, published_at, is_active, view_count, like_count, comment_count,
	last_updated_at, created_at, updated_at`

// VideoRepository defines operations for managing tracked videos.
type VideoRepository interface {
	// UpsertVideo creates a video or updates an existing one. Statistic
	// columns only move forward: an upsert carrying an observation older than
	// the stored last_updated_at keeps the stored statistics, so concurrent
	// out-of-order sync completions converge on the freshest snapshot.
	UpsertVideo(ctx context.Context, video *models.Video) error

	// GetByVideoID retrieves a video by its provider identifier.
	GetByVideoID(ctx context.Context, videoID string) (*models.Video, error)

	// ListActive retrieves all active videos, oldest observation first.
	ListActive(ctx context.Context) ([]*models.Video, error)

	// CountActiveByUser counts a user's active tracked videos (cap check).
	CountActiveByUser(ctx context.Context, userID int64) (int, error)

	// Deactivate archives a video by provider identifier.
	Deactivate(ctx context.Context, videoID string) error

	// DeleteInactiveBefore removes videos archived before the cutoff.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type videoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &videoRepository{pool: pool}
}

func (r *videoRepository) UpsertVideo(ctx context.Context, video *models.Video) error {
	// Freshness-guarded upsert: metadata follows the incoming row, statistics
	// and last_updated_at follow whichever observation is newer.
	query := `
		INSERT INTO videos (user_id, channel_pk, video_id, url, title, description,
		                    thumbnail_url, published_at, is_active,
		                    view_count, like_count, comment_count,
		                    last_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (video_id) DO UPDATE
		SET channel_pk = COALESCE(EXCLUDED.channel_pk, videos.channel_pk),
		    url = EXCLUDED.url,
		    title = COALESCE(EXCLUDED.title, videos.title),
		    description = COALESCE(EXCLUDED.description, videos.description),
		    thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, videos.thumbnail_url),
		    published_at = COALESCE(EXCLUDED.published_at, videos.published_at),
		    view_count = CASE WHEN EXCLUDED.last_updated_at >= videos.last_updated_at
		                      THEN EXCLUDED.view_count ELSE videos.view_count END,
		    like_count = CASE WHEN EXCLUDED.last_updated_at >= videos.last_updated_at
		                      THEN EXCLUDED.like_count ELSE videos.like_count END,
		    comment_count = CASE WHEN EXCLUDED.last_updated_at >= videos.last_updated_at
		                         THEN EXCLUDED.comment_count ELSE videos.comment_count END,
		    last_updated_at = GREATEST(EXCLUDED.last_updated_at, videos.last_updated_at),
		    updated_at = EXCLUDED.updated_at
		RETURNING id, view_count, like_count, comment_count, last_updated_at,
		          created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		video.UserID,
		video.ChannelPK,
		video.VideoID,
		video.URL,
		video.Title,
		video.Description,
		video.ThumbnailURL,
		video.PublishedAt,
		video.IsActive,
		video.ViewCount,
		video.LikeCount,
		video.CommentCount,
		video.LastUpdatedAt,
		video.CreatedAt,
		video.UpdatedAt,
	).Scan(
		&video.ID,
		&video.ViewCount,
		&video.LikeCount,
		&video.CommentCount,
		&video.LastUpdatedAt,
		&video.CreatedAt,
		&video.UpdatedAt,
	)

	if err != nil {
		return db.WrapError(err, "upsert video")
	}

	return nil
}

func (r *videoRepository) GetByVideoID(ctx context.Context, videoID string) (*models.Video, error) {
	query := fmt.Sprintf(`SELECT %s FROM videos WHERE video_id = $1`, videoColumns)

	video := &models.Video{}
	err := r.pool.QueryRow(ctx, query, videoID).Scan(
		&video.ID,
		&video.UserID,
		&video.ChannelPK,
		&video.VideoID,
		&video.URL,
		&video.Title,
		&video.Description,
		&video.ThumbnailURL,
		&video.PublishedAt,
		&video.IsActive,
		&video.ViewCount,
		&video.LikeCount,
		&video.CommentCount,
		&video.LastUpdatedAt,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get video by id")
	}

	return video, nil
}

func (r *videoRepository) ListActive(ctx context.Context) ([]*models.Video, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM videos
		WHERE is_active = TRUE
		ORDER BY last_updated_at ASC
	`, videoColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "list active videos")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM videos WHERE user_id = $1 AND is_active = TRUE`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, db.WrapError(err, "count active videos by user")
	}

	return count, nil
}

func (r *videoRepository) Deactivate(ctx context.Context, videoID string) error {
	query := `UPDATE videos SET is_active = FALSE, updated_at = now() WHERE video_id = $1`

	tag, err := r.pool.Exec(ctx, query, videoID)
	if err != nil {
		return db.WrapError(err, "deactivate video")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "deactivate video")
	}

	return nil
}

func (r *videoRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM videos WHERE is_active = FALSE AND updated_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, db.WrapError(err, "delete inactive videos")
	}

	return tag.RowsAffected(), nil
}

func scanVideos(rows pgx.Rows) ([]*models.Video, error) {
	var videos []*models.Video

	for rows.Next() {
		video := &models.Video{}
		err := rows.Scan(
			&video.ID,
			&video.UserID,
			&video.ChannelPK,
			&video.VideoID,
			&video.URL,
			&video.Title,
			&video.Description,
			&video.ThumbnailURL,
			&video.PublishedAt,
			&video.IsActive,
			&video.ViewCount,
			&video.LikeCount,
			&video.CommentCount,
			&video.LastUpdatedAt,
			&video.CreatedAt,
			&video.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}
