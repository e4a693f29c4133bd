// Package passwordresets stores digests of one-time password reset tokens.
package passwordresets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository manages password_reset_tokens rows. A row is usable while it is
// valid and expires_at > now.
type Repository interface {
	// Create inserts a new valid row. Fails with common.ErrTransactionFailed
	// when another valid row for the same user appeared concurrently.
	Create(ctx context.Context, token *models.PasswordResetToken) error

	// InvalidateByUser marks every valid row of userID invalid.
	InvalidateByUser(ctx context.Context, userID string) (int64, error)

	// FindUsable returns the usable row matching userID and digest, or
	// common.ErrorNotFound. It does not change the row.
	FindUsable(ctx context.Context, userID, digest string, now time.Time) (*models.PasswordResetToken, error)

	// Claim invalidates the usable row matching userID and digest and reports
	// how many rows it took (0 or 1).
	Claim(ctx context.Context, userID, digest string, now time.Time) (int64, error)

	// DeleteStale removes rows that are invalid or expired.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}
