package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// stubSessions and stubResets answer with whatever the test plugs in.
type stubSessions struct {
	signUp   func(context.Context, services.SignUpInput) (*services.Session, error)
	signIn   func(context.Context, services.SignInInput) (*services.Session, error)
	refresh  func(context.Context, string) (*services.TokenPair, error)
	signOut  func(context.Context, string) error
	identity func(context.Context, string) (*models.Profile, error)
	update   func(context.Context, string, services.UpdateProfileInput) (*models.Profile, error)
	change   func(context.Context, string, services.ChangePasswordInput) (*services.TokenPair, error)
}

func (s *stubSessions) SignUp(ctx context.Context, in services.SignUpInput) (*services.Session, error) {
	return s.signUp(ctx, in)
}
func (s *stubSessions) SignIn(ctx context.Context, in services.SignInInput) (*services.Session, error) {
	return s.signIn(ctx, in)
}
func (s *stubSessions) Refresh(ctx context.Context, token string) (*services.TokenPair, error) {
	return s.refresh(ctx, token)
}
func (s *stubSessions) SignOut(ctx context.Context, token string) error { return s.signOut(ctx, token) }
func (s *stubSessions) CurrentIdentity(ctx context.Context, userID string) (*models.Profile, error) {
	return s.identity(ctx, userID)
}
func (s *stubSessions) UpdateProfile(ctx context.Context, userID string, in services.UpdateProfileInput) (*models.Profile, error) {
	return s.update(ctx, userID, in)
}
func (s *stubSessions) ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) (*services.TokenPair, error) {
	return s.change(ctx, userID, in)
}

type stubResets struct {
	forgot   func(context.Context, string) (*services.ForgotResult, error)
	validate func(context.Context, string, string) (*models.Profile, error)
	reset    func(context.Context, services.ResetPasswordInput) error
}

func (s *stubResets) ForgotPassword(ctx context.Context, email string) (*services.ForgotResult, error) {
	return s.forgot(ctx, email)
}
func (s *stubResets) ValidateResetToken(ctx context.Context, userID, token string) (*models.Profile, error) {
	return s.validate(ctx, userID, token)
}
func (s *stubResets) ResetPassword(ctx context.Context, in services.ResetPasswordInput) error {
	return s.reset(ctx, in)
}

func testCodec(t *testing.T, now func() time.Time) *auth.Codec {
	t.Helper()
	c, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Now:           now,
	})
	require.NoError(t, err)
	return c
}

type testEnv struct {
	client *api.Client
	conn   *grpc.ClientConn
	codec  *auth.Codec
}

func startServer(t *testing.T, sessions SessionManager, resets ResetManager, opTimeout time.Duration) *testEnv {
	t.Helper()

	codec := testCodec(t, nil)
	srv := NewGRPCServer("bufnet", logging.Nop{}, sessions, resets, auth.NewGuard(codec), opTimeout)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	return &testEnv{client: api.NewClient(conn), conn: conn, codec: codec}
}

func withBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
}

func TestSignUp_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &stubSessions{
		signUp: func(_ context.Context, in services.SignUpInput) (*services.Session, error) {
			assert.Equal(t, services.SignUpInput{Email: "a@x.com", Password: "secret1", Name: "A"}, in)
			return &services.Session{
				User:   models.Profile{ID: "u1", Email: "a@x.com", DisplayName: "A", CreatedAt: now, UpdatedAt: now},
				Tokens: services.TokenPair{AccessToken: "at", RefreshToken: "rt", AccessExpiresAt: now, RefreshExpiresAt: now},
			}, nil
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)

	resp, err := env.client.SignUp(context.Background(), &api.SignUpRequest{Email: "a@x.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "A", resp.User.DisplayName)
	assert.True(t, now.Equal(resp.User.CreatedAt))
	assert.Equal(t, "at", resp.Tokens.AccessToken)
	assert.Equal(t, "rt", resp.Tokens.RefreshToken)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		msg  string
	}{
		{"validation", errors.Join(common.ErrValidation, errors.New("password too short")), codes.InvalidArgument, "password too short"},
		{"duplicate", common.ErrDuplicateEmail, codes.AlreadyExists, "email already registered"},
		{"credentials", common.ErrInvalidCredentials, codes.Unauthenticated, "invalid credentials"},
		{"not found", common.ErrorNotFound, codes.NotFound, "not found"},
		{"reset token", common.ErrInvalidOrExpiredToken, codes.InvalidArgument, "invalid or expired token"},
		{"store down", oops.In("credstore").Wrap(errors.Join(common.ErrStoreUnavailable, errors.New("dial tcp: refused"))), codes.Unavailable, "retry"},
		{"tx aborted", errors.Join(common.ErrTransactionFailed, errors.New("serialization")), codes.Unavailable, "retry"},
		{"mail", errors.Join(common.ErrMailDelivery, errors.New("550")), codes.Unavailable, "retry"},
		{"unknown", errors.New("boom"), codes.Internal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &stubSessions{
				signIn: func(context.Context, services.SignInInput) (*services.Session, error) { return nil, tt.err },
			}
			env := startServer(t, sessions, &stubResets{}, time.Second)

			_, err := env.client.SignIn(context.Background(), &api.SignInRequest{Email: "a@x.com", Password: "p"})
			require.Error(t, err)
			st := status.Convert(err)
			assert.Equal(t, tt.code, st.Code())
			assert.Contains(t, st.Message(), tt.msg)
			assert.NotContains(t, st.Message(), "refused")
		})
	}
}

func TestRefresh_InvalidTokenSetsClearHeader(t *testing.T) {
	sessions := &stubSessions{
		refresh: func(context.Context, string) (*services.TokenPair, error) {
			return nil, errors.Join(common.ErrInvalidRefreshToken, common.ErrTokenExpired)
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)

	var header metadata.MD
	_, err := env.client.Refresh(context.Background(), &api.RefreshRequest{RefreshToken: "old"}, grpc.Header(&header))
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, common.ErrInvalidRefreshToken.Error(), status.Convert(err).Message())
	assert.Equal(t, []string{"true"}, header.Get(common.ClearTokensHeaderName))
}

func TestRefresh_OtherErrorsKeepTokens(t *testing.T) {
	sessions := &stubSessions{
		refresh: func(context.Context, string) (*services.TokenPair, error) {
			return nil, errors.Join(common.ErrStoreUnavailable, errors.New("down"))
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)

	var header metadata.MD
	_, err := env.client.Refresh(context.Background(), &api.RefreshRequest{RefreshToken: "old"}, grpc.Header(&header))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Empty(t, header.Get(common.ClearTokensHeaderName))
}

func TestMe_AccessGuard(t *testing.T) {
	var gotUser string
	sessions := &stubSessions{
		identity: func(_ context.Context, userID string) (*models.Profile, error) {
			gotUser = userID
			return &models.Profile{ID: userID, Email: "a@x.com"}, nil
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)
	ctx := context.Background()

	_, err := env.client.Me(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Empty(t, gotUser)

	_, err = env.client.Me(withBearer(ctx, "garbage"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	stale := testCodec(t, func() time.Time { return time.Now().Add(-time.Hour) })
	old, err := stale.IssueAccess("u1", "a@x.com")
	require.NoError(t, err)
	_, err = env.client.Me(withBearer(ctx, old.Value))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), common.ErrTokenExpired.Error())

	// A refresh token is not an access token.
	rt, err := env.codec.IssueRefresh("u1")
	require.NoError(t, err)
	_, err = env.client.Me(withBearer(ctx, rt.Value))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	at, err := env.codec.IssueAccess("u1", "a@x.com")
	require.NoError(t, err)
	p, err := env.client.Me(withBearer(ctx, at.Value))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "u1", gotUser)

	cookieCtx := metadata.AppendToOutgoingContext(ctx, common.CookieHeaderName, "theme=dark; access_token="+at.Value)
	_, err = env.client.Me(cookieCtx)
	assert.NoError(t, err)

	headerCtx := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, at.Value)
	_, err = env.client.Me(headerCtx)
	assert.NoError(t, err)
}

func TestStatus_OptionalAuthentication(t *testing.T) {
	env := startServer(t, &stubSessions{}, &stubResets{}, time.Second)
	ctx := context.Background()

	st, err := env.client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	st, err = env.client.Status(withBearer(ctx, "garbage"))
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	at, err := env.codec.IssueAccess("u1", "a@x.com")
	require.NoError(t, err)
	st, err = env.client.Status(withBearer(ctx, at.Value))
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, "a@x.com", st.Email)
}

func TestUpdateProfile_RejectsPasswordField(t *testing.T) {
	called := false
	sessions := &stubSessions{
		update: func(context.Context, string, services.UpdateProfileInput) (*models.Profile, error) {
			called = true
			return &models.Profile{}, nil
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)

	at, err := env.codec.IssueAccess("u1", "a@x.com")
	require.NoError(t, err)

	payload := map[string]any{"display_name": "A", "password": "hijack"}
	var out api.Profile
	err = env.conn.Invoke(withBearer(context.Background(), at.Value), api.FullMethod(api.MethodUpdateProfile),
		payload, &out, grpc.CallContentSubtype(api.CodecName))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.False(t, called)
}

func TestUpdateProfile_PassesEnumeratedFields(t *testing.T) {
	sessions := &stubSessions{
		update: func(_ context.Context, userID string, in services.UpdateProfileInput) (*models.Profile, error) {
			require.NotNil(t, in.DisplayName)
			assert.Nil(t, in.Email)
			return &models.Profile{ID: userID, DisplayName: *in.DisplayName}, nil
		},
	}
	env := startServer(t, sessions, &stubResets{}, time.Second)
	at, err := env.codec.IssueAccess("u1", "a@x.com")
	require.NoError(t, err)

	name := "Alice"
	p, err := env.client.UpdateProfile(withBearer(context.Background(), at.Value), &api.UpdateProfileRequest{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
}

func TestResetFlow_Transport(t *testing.T) {
	resets := &stubResets{
		forgot: func(context.Context, string) (*services.ForgotResult, error) {
			return &services.ForgotResult{Message: services.ForgotMessage}, nil
		},
		validate: func(_ context.Context, userID, token string) (*models.Profile, error) {
			if token != "good" {
				return nil, common.ErrInvalidOrExpiredToken
			}
			return &models.Profile{ID: userID}, nil
		},
		reset: func(_ context.Context, in services.ResetPasswordInput) error {
			if in.Token != "good" {
				return common.ErrInvalidOrExpiredToken
			}
			return nil
		},
	}
	env := startServer(t, &stubSessions{}, resets, time.Second)
	ctx := context.Background()

	fr, err := env.client.ForgotPassword(ctx, &api.ForgotPasswordRequest{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, services.ForgotMessage, fr.Message)

	p, err := env.client.ValidateResetToken(ctx, &api.ValidateResetTokenRequest{UserID: "u1", Token: "good"})
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	_, err = env.client.ResetPassword(ctx, &api.ResetPasswordRequest{UserID: "u1", Token: "bad", NewPassword: "secret2"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.ResetPassword(ctx, &api.ResetPasswordRequest{UserID: "u1", Token: "good", NewPassword: "secret2"})
	assert.NoError(t, err)
}

func TestTimeoutInterceptor_BoundsOperations(t *testing.T) {
	sessions := &stubSessions{
		signOut: func(ctx context.Context, _ string) error {
			dl, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			if time.Until(dl) > 200*time.Millisecond {
				return errors.New("deadline too far")
			}
			<-ctx.Done()
			return errors.Join(common.ErrStoreUnavailable, ctx.Err())
		},
	}
	env := startServer(t, sessions, &stubResets{}, 100*time.Millisecond)

	_, err := env.client.SignOut(context.Background(), &api.SignOutRequest{RefreshToken: "rt"})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, &stubSessions{}, &stubResets{}, auth.NewGuard(testCodec(t, nil)), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &stubSessions{}, &stubResets{}, auth.NewGuard(testCodec(t, nil)), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
