package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// toStatus maps the error taxonomy onto gRPC codes. Credential failures get
// fixed, generic messages; validation failures keep their field detail. A
// rejected refresh token also sets the x-clear-tokens response header.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrDuplicateEmail):
		return status.Error(codes.AlreadyExists, common.ErrDuplicateEmail.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCredentials.Error())
	case errors.Is(err, common.ErrInvalidRefreshToken):
		if hdrErr := grpc.SetHeader(ctx, metadata.Pairs(common.ClearTokensHeaderName, "true")); hdrErr != nil {
			s.logger.Debug(ctx, "clear-tokens header not set", "error", hdrErr.Error())
		}
		return status.Error(codes.Unauthenticated, common.ErrInvalidRefreshToken.Error())
	case errors.Is(err, common.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, common.ErrUnauthenticated.Error())
	case errors.Is(err, common.ErrForbidden):
		// "forbidden: token expired" tells a client it may refresh.
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return status.Error(codes.InvalidArgument, common.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, common.ErrorNotFound.Error())
	case common.IsInfrastructure(err):
		s.logger.Error(ctx, "infrastructure failure", logging.ErrorAttrs(err)...)
		return status.Error(codes.Unavailable, "service temporarily unavailable, retry the operation")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "operation timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "operation canceled")
	default:
		s.logger.Error(ctx, "internal failure", logging.ErrorAttrs(err)...)
		return status.Error(codes.Internal, "internal error")
	}
}
