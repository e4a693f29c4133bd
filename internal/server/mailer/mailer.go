// Package mailer delivers password reset links. The raw reset token travels
// only inside the message body; it is never logged.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ResetMessage is everything a reset email needs.
type ResetMessage struct {
	To        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	// Link is optional; when empty the body carries the user id and token
	// for manual entry.
	Link string
}

// Sender delivers reset messages. Implementations must respect ctx.
type Sender interface {
	SendReset(ctx context.Context, msg ResetMessage) error
}

// ResetLink appends uid and token query parameters to base. An empty base
// yields an empty link.
func ResetLink(base, userID, token string) (string, error) {
	if base == "" {
		return "", nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}
	q := u.Query()
	q.Set("uid", userID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func resetBody(msg ResetMessage) string {
	var b strings.Builder
	b.WriteString("A password reset was requested for your account.\r\n\r\n")
	if msg.Link != "" {
		fmt.Fprintf(&b, "Open this link to choose a new password:\r\n%s\r\n\r\n", msg.Link)
	} else {
		fmt.Fprintf(&b, "User id: %s\r\nReset token: %s\r\n\r\n", msg.UserID, msg.Token)
	}
	if !msg.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "The link expires at %s.\r\n", msg.ExpiresAt.UTC().Format(time.RFC1123))
	}
	b.WriteString("If you did not ask for this, ignore this message.\r\n")
	return b.String()
}
