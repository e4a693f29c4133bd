// Package common contains shared constants and sentinel errors used across
// AuthKeeper components.
package common

const (
	// AccessTokenHeaderName is the gRPC metadata key the client uses to carry the
	// access token on outbound requests.
	AccessTokenHeaderName = "access_token"

	// AuthorizationHeaderName carries "Bearer <token>". Takes precedence over
	// AccessTokenHeaderName when both are present.
	AuthorizationHeaderName = "authorization"

	// CookieHeaderName carries cookies forwarded by an HTTP gateway.
	CookieHeaderName = "cookie"

	// AccessTokenCookieName is the cookie holding the access token.
	AccessTokenCookieName = "access_token"

	// ClearTokensHeaderName is set on responses that require the client to drop
	// every token it holds.
	ClearTokensHeaderName = "x-clear-tokens"
)
