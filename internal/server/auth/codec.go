// Package auth issues and verifies the signed access and refresh tokens and
// gates protected operations on them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims is the JWT payload shared by both token classes. Email is only set
// on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Kind   string `json:"kind"`
}

type AccessClaims struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type RefreshClaims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Codec signs access tokens and refresh tokens with independent HS256 keys.
// Verification is pure: it never looks at storage, so a revoked refresh
// token still verifies until it expires.
type Codec struct {
	cfg CodecConfig
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.cfg.AccessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

func (c *Codec) IssueAccess(userID, email string) (IssuedToken, error) {
	return c.issue(Claims{UserID: userID, Email: email, Kind: kindAccess}, c.cfg.AccessTTL, c.cfg.AccessSecret)
}

func (c *Codec) IssueRefresh(userID string) (IssuedToken, error) {
	return c.issue(Claims{UserID: userID, Kind: kindRefresh}, c.cfg.RefreshTTL, c.cfg.RefreshSecret)
}

func (c *Codec) issue(claims Claims, ttl time.Duration, key []byte) (IssuedToken, error) {
	now := c.cfg.Now()
	exp := jwt.NewNumericDate(now.Add(ttl))

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		Issuer:    c.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: exp,
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return IssuedToken{Value: s, ExpiresAt: exp.Time}, nil
}

func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	cl, err := c.parse(token, c.cfg.AccessSecret, kindAccess)
	if err != nil {
		return nil, err
	}
	return &AccessClaims{
		UserID:    cl.UserID,
		Email:     cl.Email,
		IssuedAt:  cl.IssuedAt.Time,
		ExpiresAt: cl.ExpiresAt.Time,
	}, nil
}

func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	cl, err := c.parse(token, c.cfg.RefreshSecret, kindRefresh)
	if err != nil {
		return nil, err
	}
	return &RefreshClaims{
		UserID:    cl.UserID,
		IssuedAt:  cl.IssuedAt.Time,
		ExpiresAt: cl.ExpiresAt.Time,
	}, nil
}

// parse maps every failure to one of common.ErrTokenMalformed,
// common.ErrTokenExpired or common.ErrInvalidSignature. The signature is
// checked before expiry, so a forged expired token reports the signature.
func (c *Codec) parse(token string, key []byte, kind string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	default:
		return nil, common.ErrTokenMalformed
	}

	if claims.Kind != kind || claims.UserID == "" {
		return nil, common.ErrTokenMalformed
	}
	return claims, nil
}
