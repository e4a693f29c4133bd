// Package authclient is the AuthKeeper client used by authctl. It keeps the
// token pair in a TokenStore, attaches the access token to every call and
// transparently refreshes it once when the server reports it expired.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/client/tokenstore"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenStore persists the session between calls.
type TokenStore interface {
	Load(ctx context.Context) (tokenstore.Tokens, error)
	Save(ctx context.Context, t tokenstore.Tokens) error
	Clear(ctx context.Context) error
}

type Client struct {
	conn  *grpc.ClientConn
	api   *api.Client
	store TokenStore

	// serializes refreshes so concurrent calls do not spend the same
	// refresh token twice
	refreshMu sync.Mutex
}

var refreshMethod = api.FullMethod(api.MethodRefresh)

// New dials target. Extra options are appended after the defaults, which
// use plaintext transport.
func New(target string, store TokenStore, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{store: store}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c.conn = conn
	c.api = api.NewClient(conn)
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
}

func isExpiredAccess(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.PermissionDenied &&
		strings.Contains(st.Message(), common.ErrTokenExpired.Error())
}

func (c *Client) accessTokenInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if method == refreshMethod {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	tokens, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, opts...)
	if !isExpiredAccess(err) || tokens.RefreshToken == "" {
		return err
	}

	fresh, rerr := c.refresh(ctx, tokens.RefreshToken)
	if rerr != nil {
		return rerr
	}
	return invoker(withAccessToken(ctx, fresh.AccessToken), method, req, reply, cc, opts...)
}

func shouldClear(err error, header metadata.MD) bool {
	if v := header.Get(common.ClearTokensHeaderName); len(v) > 0 && v[0] == "true" {
		return true
	}
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrInvalidRefreshToken.Error()
}

// refresh trades used for a new pair. If another call already rotated
// used, the stored pair is returned instead of spending a dead token.
func (c *Client) refresh(ctx context.Context, used string) (*api.TokenPair, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cur.RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	if cur.RefreshToken != used {
		return &api.TokenPair{AccessToken: cur.AccessToken, RefreshToken: cur.RefreshToken}, nil
	}

	var header metadata.MD
	pair, err := c.api.Refresh(ctx, &api.RefreshRequest{RefreshToken: used}, grpc.Header(&header))
	if err != nil {
		if shouldClear(err, header) {
			if cerr := c.store.Clear(ctx); cerr != nil {
				return nil, errors.Join(ErrSessionEnded, cerr)
			}
			return nil, ErrSessionEnded
		}
		return nil, mapError(err)
	}

	if err := c.store.Save(ctx, tokenstore.Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return nil, err
	}
	return pair, nil
}

func (c *Client) saveSession(ctx context.Context, s *api.SessionResponse) error {
	return c.store.Save(ctx, tokenstore.Tokens{
		AccessToken:  s.Tokens.AccessToken,
		RefreshToken: s.Tokens.RefreshToken,
		UserID:       s.User.ID,
	})
}

// SignUp registers and stores the new session.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*api.Profile, error) {
	res, err := c.api.SignUp(ctx, &api.SignUpRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, mapError(err)
	}
	if err := c.saveSession(ctx, res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*api.Profile, error) {
	res, err := c.api.SignIn(ctx, &api.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, mapError(err)
	}
	if err := c.saveSession(ctx, res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Refresh rotates the stored refresh token explicitly.
func (c *Client) Refresh(ctx context.Context) (*api.TokenPair, error) {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	return c.refresh(ctx, tokens.RefreshToken)
}

// SignOut revokes the refresh token on the server and always forgets the
// local session, even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	var rpcErr error
	if tokens.RefreshToken != "" {
		_, rpcErr = c.api.SignOut(ctx, &api.SignOutRequest{RefreshToken: tokens.RefreshToken})
	}
	if err := c.store.Clear(ctx); err != nil {
		return errors.Join(mapError(rpcErr), err)
	}
	return mapError(rpcErr)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	res, err := c.api.ForgotPassword(ctx, &api.ForgotPasswordRequest{Email: email})
	if err != nil {
		return "", mapError(err)
	}
	return res.Message, nil
}

func (c *Client) ValidateResetToken(ctx context.Context, userID, token string) (*api.Profile, error) {
	p, err := c.api.ValidateResetToken(ctx, &api.ValidateResetTokenRequest{UserID: userID, Token: token})
	return p, mapError(err)
}

// ResetPassword redeems a reset token. The server revokes every session of
// that user, so a cached session for the same user is dropped too.
func (c *Client) ResetPassword(ctx context.Context, userID, token, newPassword string) error {
	_, err := c.api.ResetPassword(ctx, &api.ResetPasswordRequest{UserID: userID, Token: token, NewPassword: newPassword})
	if err != nil {
		return mapError(err)
	}

	tokens, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if tokens.UserID == userID {
		return c.store.Clear(ctx)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*api.Profile, error) {
	p, err := c.api.Me(ctx)
	return p, mapError(err)
}

// UpdateProfile sends only the non-nil fields.
func (c *Client) UpdateProfile(ctx context.Context, displayName, email *string) (*api.Profile, error) {
	p, err := c.api.UpdateProfile(ctx, &api.UpdateProfileRequest{DisplayName: displayName, Email: email})
	return p, mapError(err)
}

// ChangePassword replaces the stored session with the one the server opens
// after the change.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	pair, err := c.api.ChangePassword(ctx, &api.ChangePasswordRequest{CurrentPassword: current, NewPassword: next})
	if err != nil {
		return mapError(err)
	}
	return c.store.Save(ctx, tokenstore.Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	s, err := c.api.Status(ctx)
	return s, mapError(err)
}
