// Package refreshtokens declares the server-side repository contract for
// refresh token rows and its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores refresh token digests. A row is live while
// expires_at > now; expired rows are ignored by every lookup.
type Repository interface {
	// Create inserts a new session grant.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindLive returns the live row owned by userID with the given digest,
	// or common.ErrorNotFound.
	FindLive(ctx context.Context, userID, digest string, now time.Time) (*models.RefreshToken, error)

	// DeleteLive removes the live row owned by userID with the given digest
	// and reports how many rows went away (0 or 1).
	DeleteLive(ctx context.Context, userID, digest string, now time.Time) (int64, error)

	// Delete removes the row with the given digest regardless of owner or
	// expiry. Deleting a missing row is not an error.
	Delete(ctx context.Context, digest string) error

	// DeleteByUser removes every row of userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes rows that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
