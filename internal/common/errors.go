// Package common defines shared constants and sentinel errors used across
// client and server layers of AuthKeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Payload validation. Wrapped with a field-specific message so callers can
	// correct their input.
	ErrValidation = errors.New("validation error")

	// Credential lifecycle errors. Messages are deliberately generic where the
	// failure is enumeration-sensitive.
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Access gate outcomes.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Token codec errors.
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")

	// Infrastructure faults. The whole operation may be retried by the caller,
	// it must never be resumed half way.
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrMailDelivery      = errors.New("mail delivery failed")
)

// IsInfrastructure reports whether err belongs to the infrastructure class
// (store connectivity, aborted transactions, mail transport).
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrMailDelivery)
}
