package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "authkeeper.v1.AuthService"

const (
	MethodSignUp             = "SignUp"
	MethodSignIn             = "SignIn"
	MethodRefresh            = "Refresh"
	MethodSignOut            = "SignOut"
	MethodForgotPassword     = "ForgotPassword"
	MethodValidateResetToken = "ValidateResetToken"
	MethodResetPassword      = "ResetPassword"
	MethodMe                 = "Me"
	MethodUpdateProfile      = "UpdateProfile"
	MethodChangePassword     = "ChangePassword"
	MethodStatus             = "Status"
)

// FullMethod returns the gRPC path of method, e.g. /authkeeper.v1.AuthService/SignIn.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AuthServer is implemented by the transport layer.
type AuthServer interface {
	SignUp(context.Context, *SignUpRequest) (*SessionResponse, error)
	SignIn(context.Context, *SignInRequest) (*SessionResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenPair, error)
	SignOut(context.Context, *SignOutRequest) (*Empty, error)
	ForgotPassword(context.Context, *ForgotPasswordRequest) (*ForgotPasswordResponse, error)
	ValidateResetToken(context.Context, *ValidateResetTokenRequest) (*Profile, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*Empty, error)
	Me(context.Context, *Empty) (*Profile, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*Profile, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*TokenPair, error)
	Status(context.Context, *Empty) (*StatusResponse, error)
}

// unary builds the MethodDesc for one request/response method. Decoding
// failures (unknown fields, wrong types) are reported as InvalidArgument.
func unary[Req, Resp any](method string, call func(AuthServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Error(codes.InvalidArgument, status.Convert(err).Message())
			}
			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSignUp, AuthServer.SignUp),
		unary(MethodSignIn, AuthServer.SignIn),
		unary(MethodRefresh, AuthServer.Refresh),
		unary(MethodSignOut, AuthServer.SignOut),
		unary(MethodForgotPassword, AuthServer.ForgotPassword),
		unary(MethodValidateResetToken, AuthServer.ValidateResetToken),
		unary(MethodResetPassword, AuthServer.ResetPassword),
		unary(MethodMe, AuthServer.Me),
		unary(MethodUpdateProfile, AuthServer.UpdateProfile),
		unary(MethodChangePassword, AuthServer.ChangePassword),
		unary(MethodStatus, AuthServer.Status),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authkeeper/v1/auth",
}

func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&ServiceDesc, srv)
}
