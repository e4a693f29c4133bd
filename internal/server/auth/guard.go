package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// AccessVerifier is the part of Codec the Guard needs.
type AccessVerifier interface {
	VerifyAccess(token string) (*AccessClaims, error)
}

// Guard decides whether a request may reach a protected operation. It only
// looks at the access token; revoked sessions keep working until their
// access token expires.
type Guard struct {
	verifier AccessVerifier
}

func NewGuard(v AccessVerifier) *Guard {
	return &Guard{verifier: v}
}

// Authenticate returns common.ErrUnauthenticated when token is empty and an
// error wrapping both common.ErrForbidden and the codec reason when it does
// not verify.
func (g *Guard) Authenticate(token string) (*Identity, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}
	cl, err := g.verifier.VerifyAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrForbidden, err)
	}
	return &Identity{UserID: cl.UserID, Email: cl.Email, ExpiresAt: cl.ExpiresAt}, nil
}

// OptionalAuthenticate never fails; it reports an identity only when token
// is present and valid.
func (g *Guard) OptionalAuthenticate(token string) (*Identity, bool) {
	id, err := g.Authenticate(token)
	if err != nil {
		return nil, false
	}
	return id, true
}

// Credentials are the places a request may carry its access token.
type Credentials struct {
	Authorization string // "Bearer <token>"
	AccessToken   string // bare token header
	Cookie        string // raw Cookie header
}

// Token picks the first non-empty source: bearer header, bare header, then
// the access_token cookie.
func (c Credentials) Token() string {
	if scheme, tok, ok := strings.Cut(strings.TrimSpace(c.Authorization), " "); ok && strings.EqualFold(scheme, "bearer") {
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok
		}
	}
	if tok := strings.TrimSpace(c.AccessToken); tok != "" {
		return tok
	}
	if c.Cookie != "" {
		cookies, err := http.ParseCookie(c.Cookie)
		if err == nil {
			for _, ck := range cookies {
				if ck.Name == common.AccessTokenCookieName && ck.Value != "" {
					return ck.Value
				}
			}
		}
	}
	return ""
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
