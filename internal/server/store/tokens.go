package store

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// Raw token strings are digested before they reach a repository.

// StoreRefreshToken records a new live session grant for userID.
func (s *CredentialStore) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.run(ctx, "store_refresh_token", func(ctx context.Context) error {
		now := s.timestamp()
		return s.rm.RefreshTokens(s.db).Create(ctx, &models.RefreshToken{
			ID:          newRowID(now),
			UserID:      userID,
			TokenDigest: cryptox.HashToken(token),
			CreatedAt:   now,
			ExpiresAt:   expiresAt.UTC(),
		})
	}, attribute.String("user.id", userID))
}

// FindRefreshToken returns the live row for (userID, token) or
// common.ErrorNotFound when it was rotated, revoked or has expired.
func (s *CredentialStore) FindRefreshToken(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	var t *models.RefreshToken
	err := s.run(ctx, "find_refresh_token", func(ctx context.Context) error {
		var err error
		t, err = s.rm.RefreshTokens(s.db).FindLive(ctx, userID, cryptox.HashToken(token), s.timestamp())
		return err
	}, attribute.String("user.id", userID))
	return t, err
}

// RotateRefreshToken deletes the live row for oldToken and inserts newToken
// in one transaction. When the old row is already gone the transaction is
// rolled back and common.ErrInvalidRefreshToken is returned, so of two
// concurrent rotations of the same token exactly one succeeds.
func (s *CredentialStore) RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error {
	return s.run(ctx, "rotate_refresh_token", func(ctx context.Context) error {
		now := s.timestamp()
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.rm.RefreshTokens(tx)

			n, err := repo.DeleteLive(ctx, userID, cryptox.HashToken(oldToken), now)
			if err != nil {
				return err
			}
			if n == 0 {
				return common.ErrInvalidRefreshToken
			}

			return repo.Create(ctx, &models.RefreshToken{
				ID:          newRowID(now),
				UserID:      userID,
				TokenDigest: cryptox.HashToken(newToken),
				CreatedAt:   now,
				ExpiresAt:   expiresAt.UTC(),
			})
		})
	}, attribute.String("user.id", userID))
}

// RemoveRefreshToken deletes the row for token if there is one.
func (s *CredentialStore) RemoveRefreshToken(ctx context.Context, token string) error {
	return s.run(ctx, "remove_refresh_token", func(ctx context.Context) error {
		return s.rm.RefreshTokens(s.db).Delete(ctx, cryptox.HashToken(token))
	})
}

// ClearAllRefreshTokens ends every session of userID.
func (s *CredentialStore) ClearAllRefreshTokens(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.run(ctx, "clear_refresh_tokens", func(ctx context.Context) error {
		var err error
		n, err = s.rm.RefreshTokens(s.db).DeleteByUser(ctx, userID)
		return err
	}, attribute.String("user.id", userID))
	return n, err
}

// IssueResetToken invalidates every earlier reset row of userID and stores
// the new digest, atomically. Only the newest link is ever usable.
// Concurrent issuers for one user queue on the user row lock, so each sees
// the row committed by the one before it. An inactive or unknown user
// yields common.ErrorNotFound.
func (s *CredentialStore) IssueResetToken(ctx context.Context, userID, tokenDigest string, expiresAt time.Time) error {
	return s.run(ctx, "issue_reset_token", func(ctx context.Context) error {
		now := s.timestamp()
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.rm.Users(tx).LockActive(ctx, userID); err != nil {
				return err
			}
			repo := s.rm.PasswordResets(tx)
			if _, err := repo.InvalidateByUser(ctx, userID); err != nil {
				return err
			}
			return repo.Create(ctx, &models.PasswordResetToken{
				ID:          newRowID(now),
				UserID:      userID,
				TokenDigest: tokenDigest,
				CreatedAt:   now,
				ExpiresAt:   expiresAt.UTC(),
			})
		})
	}, attribute.String("user.id", userID))
}

// ConsumeResetToken returns the user when rawToken matches a usable reset
// row of userID, and common.ErrorNotFound otherwise. The row stays valid.
func (s *CredentialStore) ConsumeResetToken(ctx context.Context, userID, rawToken string) (*models.User, error) {
	var u *models.User
	err := s.run(ctx, "consume_reset_token", func(ctx context.Context) error {
		if _, err := s.rm.PasswordResets(s.db).FindUsable(ctx, userID, cryptox.HashToken(rawToken), s.timestamp()); err != nil {
			return err
		}
		var err error
		u, err = s.rm.Users(s.db).FindActiveByID(ctx, userID)
		return err
	}, attribute.String("user.id", userID))
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RedeemResetToken claims the reset row matching rawToken and, in the same
// transaction, replaces the password, drops every refresh token and
// invalidates remaining resets. A token that is unknown, expired, already
// used or superseded yields common.ErrInvalidOrExpiredToken and changes
// nothing.
func (s *CredentialStore) RedeemResetToken(ctx context.Context, userID, rawToken, newPassword string) error {
	return s.run(ctx, "redeem_reset_token", func(ctx context.Context) error {
		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			return oops.Code("HASH_FAILED").Wrap(errors.Join(common.ErrorInternal, err))
		}

		now := s.timestamp()
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			n, err := s.rm.PasswordResets(tx).Claim(ctx, userID, cryptox.HashToken(rawToken), now)
			if err != nil {
				return err
			}
			if n == 0 {
				return common.ErrInvalidOrExpiredToken
			}

			err = s.replacePassword(ctx, tx, userID, digest)
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidOrExpiredToken
			}
			return err
		})
	}, attribute.String("user.id", userID))
}
