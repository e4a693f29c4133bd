package models

import "time"

// PasswordResetToken is a one-time reset grant. At most one row per user is
// valid at any moment.
type PasswordResetToken struct {
	ID          string
	UserID      string
	TokenDigest string
	IsValid     bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}
