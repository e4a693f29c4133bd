package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type access int

const (
	public access = iota
	protected
	optional
)

var methodAccess = map[string]access{
	api.FullMethod(api.MethodMe):             protected,
	api.FullMethod(api.MethodUpdateProfile):  protected,
	api.FullMethod(api.MethodChangePassword): protected,
	api.FullMethod(api.MethodStatus):         optional,
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func credentialsFrom(ctx context.Context) auth.Credentials {
	md, _ := metadata.FromIncomingContext(ctx)
	return auth.Credentials{
		Authorization: firstValue(md, common.AuthorizationHeaderName),
		AccessToken:   firstValue(md, common.AccessTokenHeaderName),
		Cookie:        firstValue(md, common.CookieHeaderName),
	}
}

// accessTokenInterceptor is the Access Guard. A protected method without a
// token fails with Unauthenticated; with a bad or expired token it fails
// with PermissionDenied. Optional methods just get the identity when there
// is a valid one.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	switch methodAccess[info.FullMethod] {
	case protected:
		id, err := s.guard.Authenticate(credentialsFrom(ctx).Token())
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		ctx = auth.WithIdentity(ctx, id)
	case optional:
		if id, ok := s.guard.OptionalAuthenticate(credentialsFrom(ctx).Token()); ok {
			ctx = auth.WithIdentity(ctx, id)
		}
	}
	return handler(ctx, req)
}

func (s *GRPCServer) timeoutInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.opTimeout <= 0 {
		return handler(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.Internal, codes.Unavailable:
		s.logger.Warn(ctx, "rpc failed", args...)
	default:
		s.logger.Debug(ctx, "rpc", args...)
	}
	return resp, err
}
