package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/samber/oops"
)

// domainErrors travel through the store untouched.
var domainErrors = []error{
	common.ErrorNotFound,
	common.ErrorInternal,
	common.ErrDuplicateEmail,
	common.ErrInvalidCredentials,
	common.ErrInvalidRefreshToken,
	common.ErrInvalidOrExpiredToken,
}

// classify tags every non-domain failure as infrastructure. Aborted
// transactions keep ErrTransactionFailed; anything else (driver errors,
// cancelled contexts) becomes ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}

	b := oops.In("credstore").With("operation", op)
	switch {
	case errors.Is(err, common.ErrTransactionFailed):
		return b.Code("TX_FAILED").Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return b.Code("STORE_TIMEOUT").Wrap(errors.Join(common.ErrStoreUnavailable, err))
	default:
		return b.Code("STORE_UNAVAILABLE").Wrap(errors.Join(common.ErrStoreUnavailable, err))
	}
}
