package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/samber/oops"
)

// ForgotMessage is returned for every well-formed forgot-password request.
const ForgotMessage = "If an account exists for that email, a reset link has been sent."

// ForgotResult has the same shape whether or not the email matched.
type ForgotResult struct {
	Message string
}

type ResetConfig struct {
	TokenTTL    time.Duration
	MailTimeout time.Duration
	// LinkBase is the page that receives uid and token; may be empty.
	LinkBase string
}

// ResetService runs the forgot-password / reset-password flow. Raw reset
// tokens exist only in memory and in the outgoing mail.
type ResetService struct {
	store   CredentialStore
	mail    mailer.Sender
	cfg     ResetConfig
	log     logging.Logger
	metrics metrics.Recorder
	now     func() time.Time
	newTok  func() (raw, digest string, err error)
}

func NewResetService(store CredentialStore, mail mailer.Sender, cfg ResetConfig, log logging.Logger, rec metrics.Recorder) *ResetService {
	return &ResetService{
		store:   store,
		mail:    mail,
		cfg:     cfg,
		log:     log,
		metrics: rec,
		now:     time.Now,
		newTok:  cryptox.NewResetToken,
	}
}

// ForgotPassword issues a reset token for email when it belongs to an active
// user and mails it. Unknown emails get the same result and no error.
// Store and mail failures are reported: the caller has to know the link
// never went out.
func (s *ResetService) ForgotPassword(ctx context.Context, email string) (_ *ForgotResult, err error) {
	defer func() { s.metrics.AuthOperation("forgot_password", outcome(err)) }()

	if err := validateEmail(email); err != nil {
		return nil, err
	}

	result := &ForgotResult{Message: ForgotMessage}

	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.log.Debug(ctx, "forgot password for unknown email")
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	raw, digest, err := s.newTok()
	if err != nil {
		return nil, oops.In("reset").Code("TOKEN_RANDOM").Wrap(errors.Join(common.ErrorInternal, err))
	}

	expiresAt := s.now().Add(s.cfg.TokenTTL)
	err = s.store.IssueResetToken(ctx, u.ID, digest, expiresAt)
	if errors.Is(err, common.ErrorNotFound) {
		s.log.Debug(ctx, "forgot password for user deactivated meanwhile")
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	link, err := mailer.ResetLink(s.cfg.LinkBase, u.ID, raw)
	if err != nil {
		return nil, oops.In("reset").Code("RESET_LINK").Wrap(errors.Join(common.ErrorInternal, err))
	}

	mailCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	if err := s.mail.SendReset(mailCtx, mailer.ResetMessage{
		To:        u.Email,
		UserID:    u.ID,
		Token:     raw,
		ExpiresAt: expiresAt,
		Link:      link,
	}); err != nil {
		if !errors.Is(err, common.ErrMailDelivery) {
			err = oops.In("reset").Code("MAIL_SEND").Wrap(errors.Join(common.ErrMailDelivery, err))
		}
		return nil, err
	}

	s.log.Info(ctx, "password reset issued", "user_id", u.ID)
	return result, nil
}

// ValidateResetToken reports whether token is usable for userID without
// spending it.
func (s *ResetService) ValidateResetToken(ctx context.Context, userID, token string) (*models.Profile, error) {
	if userID == "" || token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}
	u, err := s.store.ConsumeResetToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// ResetPassword spends the token and replaces the password in one step.
// Every session and every other pending reset of the user ends with it.
func (s *ResetService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	defer func() { s.metrics.AuthOperation("reset_password", outcome(err)) }()

	if err := in.Validate(); err != nil {
		return err
	}

	if err := s.store.RedeemResetToken(ctx, in.UserID, in.Token, in.NewPassword); err != nil {
		return err
	}

	s.log.Info(ctx, "password reset completed", "user_id", in.UserID)
	return nil
}
