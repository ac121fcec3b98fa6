package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/databot/youtube-tracker/internal/db"
	"github.com/databot/youtube-tracker/internal/db/models"
)

// UserRepository defines operations for managing users.
type UserRepository interface {
	// UpsertUser creates a user keyed by Discord identity, or refreshes the
	// display name of an existing one.
	UpsertUser(ctx context.Context, user *models.User) error

	// GetByDiscordID retrieves a user by their Discord identity.
	GetByDiscordID(ctx context.Context, discordUserID string) (*models.User, error)

	// GetByID retrieves a user by primary key.
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (discord_user_id, discord_username, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (discord_user_id) DO UPDATE
		SET discord_username = COALESCE(EXCLUDED.discord_username, users.discord_username),
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.DiscordUserID,
		user.DiscordUsername,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return db.WrapError(err, "upsert user")
	}

	return nil
}

func (r *userRepository) GetByDiscordID(ctx context.Context, discordUserID string) (*models.User, error) {
	query := `
		SELECT id, discord_user_id, discord_username, created_at, updated_at
		FROM users
		WHERE discord_user_id = $1
	`
	return r.scanOne(ctx, query, discordUserID)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, discord_user_id, discord_username, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

func (r *userRepository) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.DiscordUserID,
		&user.DiscordUsername,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get user")
	}
	return user, nil
}
