package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
)

// MonthlyViewRepository defines operations for monthly snapshot rows.
type MonthlyViewRepository interface {
	// RecordSnapshot writes a month-end snapshot. Repeating the write for the
	// same (video, year, month) updates views and views_change in place, which
	// is what backfill correction relies on.
	RecordSnapshot(ctx context.Context, snapshot *models.MonthlyView) error

	// GetSnapshot retrieves the snapshot for one video and month.
	GetSnapshot(ctx context.Context, videoPK int64, year, month int) (*models.MonthlyView, error)

	// HasSnapshot reports whether a snapshot exists for the video and month.
	HasSnapshot(ctx context.Context, videoPK int64, year, month int) (bool, error)

	// GetUserReport retrieves the reporting entries for a user and month.
	GetUserReport(ctx context.Context, userID int64, year, month int) ([]*models.ReportEntry, error)

	// DeleteBefore removes snapshots strictly older than the given month.
	// Returns the number of rows removed.
	DeleteBefore(ctx context.Context, year, month int) (int64, error)
}

type monthlyViewRepository struct {
	pool *pgxpool.Pool
}

// NewMonthlyViewRepository creates a new MonthlyViewRepository.
func NewMonthlyViewRepository(pool *pgxpool.Pool) MonthlyViewRepository {
	return &monthlyViewRepository{pool: pool}
}

func (r *monthlyViewRepository) RecordSnapshot(ctx context.Context, snapshot *models.MonthlyView) error {
	query := `
		INSERT INTO monthly_views (user_id, video_pk, year, month, views, views_change,
		                           created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_video_year_month DO UPDATE
		SET views = EXCLUDED.views,
		    views_change = EXCLUDED.views_change,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		snapshot.UserID,
		snapshot.VideoPK,
		snapshot.Year,
		snapshot.Month,
		snapshot.Views,
		snapshot.ViewsChange,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	).Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.UpdatedAt)

	if err != nil {
		return db.WrapError(err, "record monthly snapshot")
	}

	return nil
}

func (r *monthlyViewRepository) GetSnapshot(ctx context.Context, videoPK int64, year, month int) (*models.MonthlyView, error) {
	query := `
		SELECT id, user_id, video_pk, year, month, views, views_change, created_at, updated_at
		FROM monthly_views
		WHERE video_pk = $1 AND year = $2 AND month = $3
	`

	snapshot := &models.MonthlyView{}
	err := r.pool.QueryRow(ctx, query, videoPK, year, month).Scan(
		&snapshot.ID,
		&snapshot.UserID,
		&snapshot.VideoPK,
		&snapshot.Year,
		&snapshot.Month,
		&snapshot.Views,
		&snapshot.ViewsChange,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get monthly snapshot")
	}

	return snapshot, nil
}

func (r *monthlyViewRepository) HasSnapshot(ctx context.Context, videoPK int64, year, month int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM monthly_views WHERE video_pk = $1 AND year = $2 AND month = $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, videoPK, year, month).Scan(&exists); err != nil {
		return false, db.WrapError(err, "check monthly snapshot")
	}

	return exists, nil
}

func (r *monthlyViewRepository) GetUserReport(ctx context.Context, userID int64, year, month int) ([]*models.ReportEntry, error) {
	query := `
		SELECT user_id, year, month, views, views_change, video_pk, video_id, title, url, is_active
		FROM monthly_report_entries
		WHERE user_id = $1 AND year = $2 AND month = $3
		ORDER BY views DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, year, month)
	if err != nil {
		return nil, db.WrapError(err, "get user monthly report")
	}
	defer rows.Close()

	var entries []*models.ReportEntry
	for rows.Next() {
		entry := &models.ReportEntry{}
		err := rows.Scan(
			&entry.UserID,
			&entry.Year,
			&entry.Month,
			&entry.Views,
			&entry.ViewsChange,
			&entry.VideoPK,
			&entry.VideoID,
			&entry.Title,
			&entry.URL,
			&entry.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan report entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report entries: %w", err)
	}

	return entries, nil
}

func (r *monthlyViewRepository) DeleteBefore(ctx context.Context, year, month int) (int64, error) {
	query := `DELETE FROM monthly_views WHERE (year, month) < ($1, $2)`

	tag, err := r.pool.Exec(ctx, query, year, month)
	if err != nil {
		return 0, db.WrapError(err, "delete old monthly snapshots")
	}

	return tag.RowsAffected(), nil
}
