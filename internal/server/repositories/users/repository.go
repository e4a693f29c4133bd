// Package users declares the repository contract for user rows and its
// PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository reads and writes user rows. Lookups only see active users and
// return common.ErrorNotFound when nothing matches.
type Repository interface {
	// Create inserts user. A clash with another active user's email returns
	// common.ErrDuplicateEmail.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	FindActiveByEmail(ctx context.Context, email string) (*models.User, error)
	FindActiveByID(ctx context.Context, id string) (*models.User, error)

	// LockActive takes a row lock on the active user until the surrounding
	// transaction ends.
	LockActive(ctx context.Context, id string) error

	// UpdatePassword replaces the stored digest.
	UpdatePassword(ctx context.Context, id, digest string, now time.Time) error

	// UpdateProfile applies the non-nil fields of upd. Changing the email
	// clears is_verified.
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate, now time.Time) (*models.User, error)
}
