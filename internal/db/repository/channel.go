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

const channelColumns = `id, user_id, channel_id, channel_name, url,
	verification_code, verification_state, verification_mode, verification_attempts,
	is_verified, is_active, last_sync_at, created_at, updated_at`

// ChannelRepository defines operations for managing channel claims.
type ChannelRepository interface {
	// UpsertChannel creates a channel claim or updates the mutable fields of
	// an existing one (same provider channel_id).
	UpsertChannel(ctx context.Context, channel *models.Channel) error

	// GetByChannelID retrieves a channel by its provider identifier.
	GetByChannelID(ctx context.Context, channelID string) (*models.Channel, error)

	// GetByID retrieves a channel by primary key.
	GetByID(ctx context.Context, id int64) (*models.Channel, error)

	// UpdateVerification persists the verification state, attempt counter and
	// code of a channel after a state machine transition.
	UpdateVerification(ctx context.Context, channel *models.Channel) error

	// ListPendingCheck retrieves channels awaiting a verification check.
	ListPendingCheck(ctx context.Context, limit int) ([]*models.Channel, error)

	// ListSyncCandidates retrieves verified active channels eligible for sync
	// jobs, optionally filtered by verification mode.
	ListSyncCandidates(ctx context.Context, mode *models.VerificationMode) ([]*models.Channel, error)

	// SetActive toggles the archival flag.
	SetActive(ctx context.Context, id int64, active bool) error

	// TouchSync records a completed sync pass.
	TouchSync(ctx context.Context, id int64, at time.Time) error
}

type channelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(pool *pgxpool.Pool) ChannelRepository {
	return &channelRepository{pool: pool}
}

func (r *channelRepository) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	query := `
		INSERT INTO channels (user_id, channel_id, channel_name, url,
		                      verification_code, verification_state, verification_mode,
		                      verification_attempts, is_verified, is_active,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (channel_id) DO UPDATE
		SET channel_name = COALESCE(EXCLUDED.channel_name, channels.channel_name),
		    url = EXCLUDED.url,
		    is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, verification_code, verification_state, verification_mode,
		          verification_attempts, is_verified, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		channel.UserID,
		channel.ChannelID,
		channel.ChannelName,
		channel.URL,
		channel.VerificationCode,
		channel.VerificationState,
		channel.VerificationMode,
		channel.VerificationAttempts,
		channel.IsVerified,
		channel.IsActive,
		channel.CreatedAt,
		channel.UpdatedAt,
	).Scan(
		&channel.ID,
		&channel.UserID,
		&channel.VerificationCode,
		&channel.VerificationState,
		&channel.VerificationMode,
		&channel.VerificationAttempts,
		&channel.IsVerified,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)

	if err != nil {
		return db.WrapError(err, "upsert channel")
	}

	return nil
}

func (r *channelRepository) GetByChannelID(ctx context.Context, channelID string) (*models.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM channels WHERE channel_id = $1`, channelColumns)
	return r.scanOne(ctx, query, channelID)
}

func (r *channelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM channels WHERE id = $1`, channelColumns)
	return r.scanOne(ctx, query, id)
}

func (r *channelRepository) UpdateVerification(ctx context.Context, channel *models.Channel) error {
	query := `
		UPDATE channels
		SET verification_code = $2,
		    verification_state = $3,
		    verification_attempts = $4,
		    is_verified = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		channel.ID,
		channel.VerificationCode,
		channel.VerificationState,
		channel.VerificationAttempts,
		channel.IsVerified,
	).Scan(&channel.UpdatedAt)

	if err != nil {
		return db.WrapError(err, "update channel verification")
	}

	return nil
}

func (r *channelRepository) ListPendingCheck(ctx context.Context, limit int) ([]*models.Channel, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM channels
		WHERE verification_state = $1 AND is_active = TRUE
		ORDER BY updated_at ASC
		LIMIT $2
	`, channelColumns)

	rows, err := r.pool.Query(ctx, query, models.StatePendingCheck, limit)
	if err != nil {
		return nil, db.WrapError(err, "list pending-check channels")
	}
	defer rows.Close()

	return scanChannels(rows)
}

func (r *channelRepository) ListSyncCandidates(ctx context.Context, mode *models.VerificationMode) ([]*models.Channel, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM channels
		WHERE verification_state = $1 AND is_active = TRUE
		  AND ($2::varchar IS NULL OR verification_mode = $2)
		ORDER BY last_sync_at ASC NULLS FIRST
	`, channelColumns)

	rows, err := r.pool.Query(ctx, query, models.StateVerified, mode)
	if err != nil {
		return nil, db.WrapError(err, "list sync candidate channels")
	}
	defer rows.Close()

	return scanChannels(rows)
}

func (r *channelRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE channels SET is_active = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return db.WrapError(err, "set channel active")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "set channel active")
	}

	return nil
}

func (r *channelRepository) TouchSync(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE channels SET last_sync_at = $2, updated_at = now() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return db.WrapError(err, "touch channel sync")
	}

	return nil
}

func (r *channelRepository) scanOne(ctx context.Context, query string, arg any) (*models.Channel, error) {
	channel := &models.Channel{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&channel.ID,
		&channel.UserID,
		&channel.ChannelID,
		&channel.ChannelName,
		&channel.URL,
		&channel.VerificationCode,
		&channel.VerificationState,
		&channel.VerificationMode,
		&channel.VerificationAttempts,
		&channel.IsVerified,
		&channel.IsActive,
		&channel.LastSyncAt,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get channel")
	}
	return channel, nil
}

func scanChannels(rows pgx.Rows) ([]*models.Channel, error) {
	var channels []*models.Channel

	for rows.Next() {
		channel := &models.Channel{}
		err := rows.Scan(
			&channel.ID,
			&channel.UserID,
			&channel.ChannelID,
			&channel.ChannelName,
			&channel.URL,
			&channel.VerificationCode,
			&channel.VerificationState,
			&channel.VerificationMode,
			&channel.VerificationAttempts,
			&channel.IsVerified,
			&channel.IsActive,
			&channel.LastSyncAt,
			&channel.CreatedAt,
			&channel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}
