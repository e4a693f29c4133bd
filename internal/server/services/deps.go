// Package services holds the server-side business flows: sessions (sign-up,
// sign-in, refresh rotation, sign-out, profile) and password resets. Both
// services are built from explicit collaborators; nothing is global.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// CredentialStore is the slice of store.CredentialStore the services use.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, email, password, name string) (*models.User, error)
	VerifyPassword(ctx context.Context, email, password string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, newPassword string) error
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)

	StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, userID, token string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error
	RemoveRefreshToken(ctx context.Context, token string) error

	IssueResetToken(ctx context.Context, userID, tokenDigest string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, userID, rawToken string) (*models.User, error)
	RedeemResetToken(ctx context.Context, userID, rawToken, newPassword string) error
}

// TokenIssuer is implemented by auth.Codec.
type TokenIssuer interface {
	IssueAccess(userID, email string) (auth.IssuedToken, error)
	IssueRefresh(userID string) (auth.IssuedToken, error)
	VerifyRefresh(token string) (*auth.RefreshClaims, error)
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Session is what sign-up and sign-in hand back. It carries the Profile, so
// the password digest can not leak through it.
type Session struct {
	User   models.Profile
	Tokens TokenPair
}

// outcome buckets err for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case common.IsInfrastructure(err), errors.Is(err, common.ErrorInternal):
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}
