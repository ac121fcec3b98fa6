package models

import "time"

// User represents a registered Discord user tracking channels and videos.
type User struct {
	ID              int64     `db:"id"`
	DiscordUserID   string    `db:"discord_user_id"`
	DiscordUsername *string   `db:"discord_username"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// NewUser creates a new User keyed by their Discord identity.
func NewUser(discordUserID, discordUsername string) *User {
	now := time.Now().UTC()
	u := &User{
		DiscordUserID: discordUserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if discordUsername != "" {
		u.DiscordUsername = &discordUsername
	}
	return u
}
