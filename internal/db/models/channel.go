package models

import "time"

// VerificationMode is the closed set of channel ownership verification modes.
type VerificationMode string

const (
	// VerificationManual requires the owner to publish an issued code in the
	// channel description.
	VerificationManual VerificationMode = "manual"

	// VerificationAutomatic infers ownership from a provider-side signal in a
	// single check, with no code exchange.
	VerificationAutomatic VerificationMode = "automatic"
)

// Valid reports whether the mode is one of the known variants.
func (m VerificationMode) Valid() bool {
	return m == VerificationManual || m == VerificationAutomatic
}

// VerificationState is the lifecycle state of a channel ownership claim.
type VerificationState string

const (
	StateUnverified   VerificationState = "unverified"
	StatePendingCheck VerificationState = "pending_check"
	StateVerified     VerificationState = "verified"
	StateRejected     VerificationState = "rejected"
)

// Terminal reports whether the state accepts no further verification checks.
func (s VerificationState) Terminal() bool {
	return s == StateVerified || s == StateRejected
}

// Channel represents a YouTube channel claimed by a user, subject to
// ownership verification before it participates in sync jobs.
type Channel struct {
	ID                   int64             `db:"id"`
	UserID               int64             `db:"user_id"`
	ChannelID            string            `db:"channel_id"`
	ChannelName          *string           `db:"channel_name"`
	URL                  string            `db:"url"`
	VerificationCode     string            `db:"verification_code"`
	VerificationState    VerificationState `db:"verification_state"`
	VerificationMode     VerificationMode  `db:"verification_mode"`
	VerificationAttempts int               `db:"verification_attempts"`
	IsVerified           bool              `db:"is_verified"`
	IsActive             bool              `db:"is_active"`
	LastSyncAt           *time.Time        `db:"last_sync_at"`
	CreatedAt            time.Time         `db:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at"`
}

// NewChannel creates an unverified channel claim with a freshly issued code.
func NewChannel(userID int64, channelID, url, code string, mode VerificationMode) *Channel {
	now := time.Now().UTC()
	return &Channel{
		UserID:            userID,
		ChannelID:         channelID,
		URL:               url,
		VerificationCode:  code,
		VerificationState: StateUnverified,
		VerificationMode:  mode,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// MarkVerified transitions the channel into the verified terminal state.
func (c *Channel) MarkVerified() {
	c.VerificationState = StateVerified
	c.IsVerified = true
	c.UpdatedAt = time.Now().UTC()
}

// MarkRejected transitions the channel into the rejected terminal state.
// Rejected channels are excluded from sync until manually reset.
func (c *Channel) MarkRejected() {
	c.VerificationState = StateRejected
	c.IsVerified = false
	c.UpdatedAt = time.Now().UTC()
}

// ResetVerification returns the channel to the unverified state with a new
// single-use code, clearing the attempt counter.
func (c *Channel) ResetVerification(code string) {
	c.VerificationCode = code
	c.VerificationState = StateUnverified
	c.VerificationAttempts = 0
	c.IsVerified = false
	c.UpdatedAt = time.Now().UTC()
}
