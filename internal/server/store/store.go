// Package store is the transactional home of users, refresh tokens and
// password reset tokens. Every multi-statement mutation runs in one
// database transaction; failures roll back completely.
package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/authkeeper/internal/server/store"

// CredentialStore persists credentials on top of a RepositoryManager.
type CredentialStore struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	hasher cryptox.PasswordHasher
	now    func() time.Time
	tracer trace.Tracer

	dummyOnce   sync.Once
	dummyDigest string
}

type Option func(*CredentialStore)

// WithClock replaces time.Now. Expiry filters and timestamps use it.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialStore) { s.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *CredentialStore) { s.tracer = t }
}

func New(db *sql.DB, rm repomanager.RepositoryManager, hasher cryptox.PasswordHasher, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		db:     db,
		rm:     rm,
		hasher: hasher,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// run wraps one store operation in a span and classifies its error.
func (s *CredentialStore) run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, "credstore."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := classify(op, fn(ctx))
	if err != nil && common.IsInfrastructure(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "infrastructure failure")
	}
	return err
}

func (s *CredentialStore) tx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

func (s *CredentialStore) timestamp() time.Time {
	return s.now().UTC()
}

// InitSchema creates or upgrades the schema. Safe on every start.
func (s *CredentialStore) InitSchema(ctx context.Context) error {
	return s.run(ctx, "init_schema", func(ctx context.Context) error {
		return s.rm.RunMigrations(ctx, s.db)
	})
}

// FindByEmail returns the active user with that email or common.ErrorNotFound.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u *models.User
	err := s.run(ctx, "find_by_email", func(ctx context.Context) error {
		var err error
		u, err = s.rm.Users(s.db).FindActiveByEmail(ctx, models.NormalizeEmail(email))
		return err
	})
	return u, err
}

// FindByID returns the active user with that id or common.ErrorNotFound.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u *models.User
	err := s.run(ctx, "find_by_id", func(ctx context.Context) error {
		var err error
		u, err = s.rm.Users(s.db).FindActiveByID(ctx, id)
		return err
	}, attribute.String("user.id", id))
	return u, err
}

// CreateUser stores a new unverified user. The email check and the insert
// share a transaction; the unique index on active emails catches whatever
// slips between them, and both paths report common.ErrDuplicateEmail.
func (s *CredentialStore) CreateUser(ctx context.Context, email, password, name string) (*models.User, error) {
	var created *models.User
	err := s.run(ctx, "create_user", func(ctx context.Context) error {
		digest, err := s.hasher.Hash(password)
		if err != nil {
			return oops.Code("HASH_FAILED").Wrap(errors.Join(common.ErrorInternal, err))
		}

		now := s.timestamp()
		u := &models.User{
			ID:             uuid.NewString(),
			Email:          models.NormalizeEmail(email),
			PasswordDigest: digest,
			DisplayName:    name,
			IsActive:       true,
			IsVerified:     false,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.rm.Users(tx)
			_, err := repo.FindActiveByEmail(ctx, u.Email)
			switch {
			case err == nil:
				return common.ErrDuplicateEmail
			case !errors.Is(err, common.ErrorNotFound):
				return err
			}
			created, err = repo.Create(ctx, u)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// VerifyPassword returns the user when password matches. Unknown emails and
// wrong passwords both yield common.ErrInvalidCredentials, and both pay for
// one hash verification.
func (s *CredentialStore) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	var u *models.User
	err := s.run(ctx, "verify_password", func(ctx context.Context) error {
		found, err := s.rm.Users(s.db).FindActiveByEmail(ctx, models.NormalizeEmail(email))
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(password, s.dummy())
			return common.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		ok, err := s.hasher.Verify(password, found.PasswordDigest)
		if err != nil {
			return oops.Code("DIGEST_INVALID").With("user_id", found.ID).Wrap(errors.Join(common.ErrorInternal, err))
		}
		if !ok {
			return common.ErrInvalidCredentials
		}
		u = found
		return nil
	})
	return u, err
}

func (s *CredentialStore) dummy() string {
	s.dummyOnce.Do(func() {
		d, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyDigest = d
		}
	})
	return s.dummyDigest
}

// UpdatePassword replaces the digest, drops every refresh token and
// invalidates every pending reset for the user in one transaction.
func (s *CredentialStore) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	return s.run(ctx, "update_password", func(ctx context.Context) error {
		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			return oops.Code("HASH_FAILED").Wrap(errors.Join(common.ErrorInternal, err))
		}
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			return s.replacePassword(ctx, tx, userID, digest)
		})
	}, attribute.String("user.id", userID))
}

func (s *CredentialStore) replacePassword(ctx context.Context, tx dbx.DBTX, userID, digest string) error {
	if err := s.rm.Users(tx).UpdatePassword(ctx, userID, digest, s.timestamp()); err != nil {
		return err
	}
	if _, err := s.rm.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.rm.PasswordResets(tx).InvalidateByUser(ctx, userID)
	return err
}

// UpdateProfile applies upd to the user's own record. A new email must not
// belong to another active user, and changing it clears verification.
func (s *CredentialStore) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	if upd.Email != nil {
		e := models.NormalizeEmail(*upd.Email)
		upd.Email = &e
	}

	var u *models.User
	err := s.run(ctx, "update_profile", func(ctx context.Context) error {
		if upd.IsEmpty() {
			var err error
			u, err = s.rm.Users(s.db).FindActiveByID(ctx, userID)
			return err
		}
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.rm.Users(tx)
			if upd.Email != nil {
				other, err := repo.FindActiveByEmail(ctx, *upd.Email)
				switch {
				case err == nil && other.ID != userID:
					return common.ErrDuplicateEmail
				case err != nil && !errors.Is(err, common.ErrorNotFound):
					return err
				}
			}
			var err error
			u, err = repo.UpdateProfile(ctx, userID, upd, s.timestamp())
			return err
		})
	}, attribute.String("user.id", userID))
	if err != nil {
		return nil, err
	}
	return u, nil
}

// PurgeResult counts rows removed by PurgeExpired.
type PurgeResult struct {
	RefreshTokens int64
	ResetTokens   int64
}

// PurgeExpired deletes expired refresh tokens and spent or expired reset
// tokens. Lookups already ignore such rows.
func (s *CredentialStore) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	err := s.run(ctx, "purge_expired", func(ctx context.Context) error {
		now := s.timestamp()
		return s.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			if res.RefreshTokens, err = s.rm.RefreshTokens(tx).DeleteExpired(ctx, now); err != nil {
				return err
			}
			res.ResetTokens, err = s.rm.PasswordResets(tx).DeleteStale(ctx, now)
			return err
		})
	})
	if err != nil {
		return PurgeResult{}, err
	}
	return res, nil
}

func newRowID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
