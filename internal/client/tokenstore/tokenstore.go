// Package tokenstore keeps the CLI's current token pair in a local SQLite
// file so consecutive authctl invocations share one session.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/tokenstore/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserID       = "user_id"
)

// Tokens is the cached session. Zero values mean "not signed in".
type Tokens struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// Empty reports whether there is nothing to present to the server.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Store is a key/value table over SQLite.
type Store struct {
	db   dbx.DBTX
	conn *sql.DB
	now  func() time.Time
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, conn: db, now: time.Now}
}

// Open opens (creating if needed) the SQLite file at dsn and applies the
// embedded migrations. ":memory:" works for tests.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session cache: %w", err)
	}
	// a single connection keeps ":memory:" databases alive between calls
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// Migrate applies the session cache schema. It uses a goose provider
// instead of the package-level state the server migrations rely on, so
// both can run in one process.
func Migrate(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("session cache migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("session cache migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, nil
}

func set(ctx context.Context, db dbx.DBTX, key, value string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to set session[%s]: %w", key, err)
	}
	return nil
}

// Load returns the cached tokens. A fresh cache yields zero Tokens.
func (s *Store) Load(ctx context.Context) (Tokens, error) {
	var t Tokens
	var err error
	if t.AccessToken, err = s.get(ctx, keyAccessToken); err != nil {
		return Tokens{}, err
	}
	if t.RefreshToken, err = s.get(ctx, keyRefreshToken); err != nil {
		return Tokens{}, err
	}
	if t.UserID, err = s.get(ctx, keyUserID); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

// Save replaces the cached tokens in one transaction. An empty UserID keeps
// the one already stored, since refresh responses do not carry it.
func (s *Store) Save(ctx context.Context, t Tokens) error {
	at := s.now()
	return dbx.WithTx(ctx, s.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := set(ctx, tx, keyAccessToken, t.AccessToken, at); err != nil {
			return err
		}
		if err := set(ctx, tx, keyRefreshToken, t.RefreshToken, at); err != nil {
			return err
		}
		if t.UserID == "" {
			return nil
		}
		return set(ctx, tx, keyUserID, t.UserID, at)
	})
}

// Clear forgets the session.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// UpdatedAt reports when the tokens were last written, zero if never.
func (s *Store) UpdatedAt(ctx context.Context) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM session`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read session timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0), nil
}
