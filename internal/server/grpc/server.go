// Package grpc exposes the session and reset flows as the AuthService gRPC
// service. The Access Guard runs as a unary interceptor in front of the
// protected methods.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc"
)

// SessionManager is implemented by services.SessionService.
type SessionManager interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*services.Session, error)
	SignIn(ctx context.Context, in services.SignInInput) (*services.Session, error)
	Refresh(ctx context.Context, token string) (*services.TokenPair, error)
	SignOut(ctx context.Context, token string) error
	CurrentIdentity(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, in services.UpdateProfileInput) (*models.Profile, error)
	ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) (*services.TokenPair, error)
}

// ResetManager is implemented by services.ResetService.
type ResetManager interface {
	ForgotPassword(ctx context.Context, email string) (*services.ForgotResult, error)
	ValidateResetToken(ctx context.Context, userID, token string) (*models.Profile, error)
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
}

type GRPCServer struct {
	address   string
	sessions  SessionManager
	resets    ResetManager
	guard     *auth.Guard
	logger    logging.Logger
	opTimeout time.Duration
}

func NewGRPCServer(addr string, l logging.Logger, sessions SessionManager, resets ResetManager, guard *auth.Guard, opTimeout time.Duration) *GRPCServer {
	return &GRPCServer{
		address:   addr,
		logger:    l.With("module", "grpc_server"),
		sessions:  sessions,
		resets:    resets,
		guard:     guard,
		opTimeout: opTimeout,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.loggingInterceptor,
		s.timeoutInterceptor,
		s.accessTokenInterceptor,
	))
	api.RegisterAuthServer(srv, &handler{s: s})
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "stopping gRPC server")
			srv.GracefulStop()
		case <-done:
		}
	}()

	s.logger.Info(ctx, "starting gRPC server", "address", lis.Addr().String())

	err := srv.Serve(lis)
	close(done)
	<-stopped
	return err
}
