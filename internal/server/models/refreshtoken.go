package models

import "time"

// RefreshToken is one live session grant. Only the digest of the token
// string is stored.
type RefreshToken struct {
	ID          string
	UserID      string
	TokenDigest string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}
