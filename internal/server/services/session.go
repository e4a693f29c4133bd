package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/samber/oops"
)

// SessionService drives the per-user session state machine:
//
//	anonymous --SignUp/SignIn--> authenticated
//	authenticated --Refresh(live token)--> authenticated, old refresh dead
//	authenticated --Refresh(dead token)--> anonymous, ErrInvalidRefreshToken
//	authenticated --SignOut--> anonymous
type SessionService struct {
	store   CredentialStore
	tokens  TokenIssuer
	log     logging.Logger
	metrics metrics.Recorder
}

func NewSessionService(store CredentialStore, tokens TokenIssuer, log logging.Logger, rec metrics.Recorder) *SessionService {
	return &SessionService{store: store, tokens: tokens, log: log, metrics: rec}
}

func (s *SessionService) observe(op string, err error) {
	s.metrics.AuthOperation(op, outcome(err))
}

// SignUp creates an unverified user and opens its first session.
func (s *SessionService) SignUp(ctx context.Context, in SignUpInput) (_ *Session, err error) {
	defer func() { s.observe("sign_up", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.CreateUser(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}

	// The user row is committed at this point. A failure below leaves an
	// account the caller can sign in to.
	pair, err := s.openSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user signed up", "user_id", u.ID)
	return &Session{User: u.Profile(), Tokens: *pair}, nil
}

// SignIn fails with common.ErrInvalidCredentials for unknown emails and wrong
// passwords alike.
func (s *SessionService) SignIn(ctx context.Context, in SignInInput) (_ *Session, err error) {
	defer func() { s.observe("sign_in", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.VerifyPassword(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	pair, err := s.openSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user signed in", "user_id", u.ID)
	return &Session{User: u.Profile(), Tokens: *pair}, nil
}

// Refresh exchanges a live refresh token for a new pair. The signature and
// expiry check is only a pre-filter: the stored row decides whether the token
// is still live, and rotation deletes it in the same transaction that stores
// its successor. Every rejection is common.ErrInvalidRefreshToken, which
// tells the caller to drop the tokens it holds.
func (s *SessionService) Refresh(ctx context.Context, token string) (_ *TokenPair, err error) {
	defer func() { s.observe("refresh", err) }()

	if token == "" {
		return nil, common.ErrInvalidRefreshToken
	}

	claims, err := s.tokens.VerifyRefresh(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidRefreshToken, err)
	}

	if _, err := s.store.FindRefreshToken(ctx, claims.UserID, token); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.replay(ctx, claims.UserID)
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, err
	}

	u, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, err
	}

	pair, err := s.mint(u)
	if err != nil {
		return nil, err
	}

	if err := s.store.RotateRefreshToken(ctx, u.ID, token, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		if errors.Is(err, common.ErrInvalidRefreshToken) {
			s.replay(ctx, u.ID)
		}
		return nil, err
	}

	s.log.Debug(ctx, "refresh token rotated", "user_id", u.ID)
	return pair, nil
}

func (s *SessionService) replay(ctx context.Context, userID string) {
	s.metrics.RefreshReplay()
	s.log.Warn(ctx, "refresh token is not live", "user_id", userID)
}

// SignOut removes the presented refresh token. An empty token or a token
// without a row is not an error. Access tokens already issued stay valid
// until they expire.
func (s *SessionService) SignOut(ctx context.Context, token string) (err error) {
	defer func() { s.observe("sign_out", err) }()

	if token == "" {
		return nil
	}
	return s.store.RemoveRefreshToken(ctx, token)
}

// CurrentIdentity returns the stored profile of userID.
func (s *SessionService) CurrentIdentity(ctx context.Context, userID string) (*models.Profile, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// UpdateProfile changes display name and/or email. The password is not
// reachable from here.
func (s *SessionService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (_ *models.Profile, err error) {
	defer func() { s.observe("update_profile", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.UpdateProfile(ctx, userID, models.ProfileUpdate{
		DisplayName: in.DisplayName,
		Email:       in.Email,
	})
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// ChangePassword checks the current password, replaces it (which ends every
// session and pending reset of the user) and opens a fresh session for the
// caller.
func (s *SessionService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (_ *TokenPair, err error) {
	defer func() { s.observe("change_password", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.VerifyPassword(ctx, u.Email, in.Current); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePassword(ctx, u.ID, in.New); err != nil {
		return nil, err
	}

	pair, err := s.openSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "password changed", "user_id", u.ID)
	return pair, nil
}

// openSession mints a pair and persists its refresh token.
func (s *SessionService) openSession(ctx context.Context, u *models.User) (*TokenPair, error) {
	pair, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreRefreshToken(ctx, u.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *SessionService) mint(u *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, oops.In("session").Code("TOKEN_SIGN").Wrap(errors.Join(common.ErrorInternal, err))
	}
	refresh, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, oops.In("session").Code("TOKEN_SIGN").Wrap(errors.Join(common.ErrorInternal, err))
	}
	return &TokenPair{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
