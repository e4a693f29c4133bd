package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ResetTokenBytes is the entropy of a raw reset token (64 hex characters).
const ResetTokenBytes = 32

// NewResetToken returns a fresh raw token and its digest. Only the digest may
// be stored; the raw value goes to the user.
func NewResetToken() (raw, digest string, err error) {
	raw, err = common.MakeRandHexString(ResetTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// HashToken is the deterministic, unsalted digest used to look tokens up.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares raw against a stored digest in constant time.
func TokenMatches(raw, digest string) bool {
	if raw == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(digest)) == 1
}
