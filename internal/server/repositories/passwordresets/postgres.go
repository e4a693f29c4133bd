package passwordresets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pgerr"
)

const oneValidIndex = "password_reset_tokens_one_valid_uidx"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_digest, is_valid, created_at, expires_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.TokenDigest, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err, oneValidIndex) {
			return errors.Join(common.ErrTransactionFailed, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	t.IsValid = true
	return nil
}

func (r *PostgresRepository) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE password_reset_tokens SET is_valid = FALSE
		WHERE user_id = $1 AND is_valid
	`
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) FindUsable(ctx context.Context, userID, digest string, now time.Time) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_digest, is_valid, created_at, expires_at
		FROM password_reset_tokens
		WHERE user_id = $1 AND token_digest = $2 AND is_valid AND expires_at > $3
	`
	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, userID, digest, now).
		Scan(&t.ID, &t.UserID, &t.TokenDigest, &t.IsValid, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Claim(ctx context.Context, userID, digest string, now time.Time) (int64, error) {
	query := `
		UPDATE password_reset_tokens SET is_valid = FALSE
		WHERE user_id = $1 AND token_digest = $2 AND is_valid AND expires_at > $3
	`
	return r.exec(ctx, query, userID, digest, now)
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE NOT is_valid OR expires_at <= $1
	`
	return r.exec(ctx, query, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
