package authclient

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrNotSignedIn  = errors.New("not signed in")
	ErrSessionEnded = errors.New("session ended, sign in again")
)

// remoteError keeps the server's message while letting callers match the
// shared sentinels with errors.Is.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionEnded) || errors.Is(err, ErrNotSignedIn) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	msg := st.Message()
	var kind error
	switch st.Code() {
	case codes.InvalidArgument:
		kind = common.ErrValidation
		if msg == common.ErrInvalidOrExpiredToken.Error() {
			kind = common.ErrInvalidOrExpiredToken
		}
	case codes.AlreadyExists:
		kind = common.ErrDuplicateEmail
	case codes.Unauthenticated:
		switch msg {
		case common.ErrInvalidCredentials.Error():
			kind = common.ErrInvalidCredentials
		case common.ErrInvalidRefreshToken.Error():
			kind = common.ErrInvalidRefreshToken
		default:
			kind = common.ErrUnauthenticated
		}
	case codes.PermissionDenied:
		kind = common.ErrForbidden
	case codes.NotFound:
		kind = common.ErrorNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
	return &remoteError{kind: kind, msg: msg}
}
