package mailer

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// DiscardSender is used when no SMTP relay is configured. It records that a
// message would have gone out, without its token or link.
type DiscardSender struct {
	log logging.Logger
}

func NewDiscardSender(log logging.Logger) *DiscardSender {
	return &DiscardSender{log: log}
}

func (d *DiscardSender) SendReset(ctx context.Context, msg ResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Warn(ctx, "smtp not configured, reset mail dropped", "user_id", msg.UserID)
	return nil
}
