package grpc

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// handler implements api.AuthServer on top of the managers.
type handler struct {
	s *GRPCServer
}

var _ api.AuthServer = (*handler)(nil)

func toProfile(p models.Profile) api.Profile {
	return api.Profile{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		IsVerified:  p.IsVerified,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toTokenPair(p *services.TokenPair) *api.TokenPair {
	return &api.TokenPair{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toSession(s *services.Session) *api.SessionResponse {
	return &api.SessionResponse{User: toProfile(s.User), Tokens: *toTokenPair(&s.Tokens)}
}

// caller returns the identity the interceptor attached. Protected methods
// never run without one.
func caller(ctx context.Context) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, common.ErrUnauthenticated
	}
	return id, nil
}

func (h *handler) SignUp(ctx context.Context, req *api.SignUpRequest) (*api.SessionResponse, error) {
	sess, err := h.s.sessions.SignUp(ctx, services.SignUpInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return toSession(sess), nil
}

func (h *handler) SignIn(ctx context.Context, req *api.SignInRequest) (*api.SessionResponse, error) {
	sess, err := h.s.sessions.SignIn(ctx, services.SignInInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return toSession(sess), nil
}

func (h *handler) Refresh(ctx context.Context, req *api.RefreshRequest) (*api.TokenPair, error) {
	pair, err := h.s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return toTokenPair(pair), nil
}

func (h *handler) SignOut(ctx context.Context, req *api.SignOutRequest) (*api.Empty, error) {
	if err := h.s.sessions.SignOut(ctx, req.RefreshToken); err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return &api.Empty{}, nil
}

func (h *handler) ForgotPassword(ctx context.Context, req *api.ForgotPasswordRequest) (*api.ForgotPasswordResponse, error) {
	res, err := h.s.resets.ForgotPassword(ctx, req.Email)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return &api.ForgotPasswordResponse{Message: res.Message}, nil
}

func (h *handler) ValidateResetToken(ctx context.Context, req *api.ValidateResetTokenRequest) (*api.Profile, error) {
	p, err := h.s.resets.ValidateResetToken(ctx, req.UserID, req.Token)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	out := toProfile(*p)
	return &out, nil
}

func (h *handler) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (*api.Empty, error) {
	err := h.s.resets.ResetPassword(ctx, services.ResetPasswordInput{
		UserID:      req.UserID,
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return &api.Empty{}, nil
}

func (h *handler) Me(ctx context.Context, _ *api.Empty) (*api.Profile, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	p, err := h.s.sessions.CurrentIdentity(ctx, id.UserID)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	out := toProfile(*p)
	return &out, nil
}

func (h *handler) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.Profile, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	p, err := h.s.sessions.UpdateProfile(ctx, id.UserID, services.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	out := toProfile(*p)
	return &out, nil
}

func (h *handler) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.TokenPair, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	pair, err := h.s.sessions.ChangePassword(ctx, id.UserID, services.ChangePasswordInput{
		Current: req.CurrentPassword,
		New:     req.NewPassword,
	})
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return toTokenPair(pair), nil
}

func (h *handler) Status(ctx context.Context, _ *api.Empty) (*api.StatusResponse, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return &api.StatusResponse{}, nil
	}
	return &api.StatusResponse{Authenticated: true, UserID: id.UserID, Email: id.Email}, nil
}
