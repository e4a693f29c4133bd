package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/samber/oops"
)

type SMTPConfig struct {
	Addr     string
	User     string
	Password string
	From     string
}

// SMTPSender talks to a relay with net/smtp. STARTTLS is used when the
// server offers it; AUTH PLAIN only when credentials are configured.
type SMTPSender struct {
	cfg  SMTPConfig
	host string
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: %w", cfg.Addr, err)
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is empty")
	}
	var d net.Dialer
	return &SMTPSender{cfg: cfg, host: host, dial: d.DialContext, now: time.Now}, nil
}

func (s *SMTPSender) SendReset(ctx context.Context, msg ResetMessage) error {
	if err := s.send(ctx, msg); err != nil {
		return oops.In("mailer").
			Code("SMTP_SEND").
			With("user_id", msg.UserID).
			Wrap(errors.Join(common.ErrMailDelivery, err))
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, msg ResetMessage) error {
	conn, err := s.dial(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if s.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.compose(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPSender) compose(msg ResetMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	b.WriteString("Subject: Password reset\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(resetBody(msg))
	return []byte(b.String())
}
