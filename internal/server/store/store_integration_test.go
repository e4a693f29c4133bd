//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container and returns a migrated store
// together with its pool.
func setupPostgres(t *testing.T) (*store.CredentialStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authkeeper_test"),
		postgres.WithUsername("authkeeper"),
		postgres.WithPassword("authkeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// low argon2 cost for the concurrent cases
	hasher := cryptox.NewArgon2idHasher(cryptox.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
	st := store.New(db, repomanager.NewPostgresRepositoryManager(), hasher)
	require.NoError(t, st.InitSchema(ctx))
	// a second run is a no-op
	require.NoError(t, st.InitSchema(ctx))
	return st, db
}

func TestPostgres_ConcurrentSignUpOneWinner(t *testing.T) {
	st, _ := setupPostgres(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.CreateUser(ctx, "Race@Example.com", "secret1", "R")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrDuplicateEmail)
	}
	assert.Equal(t, 1, ok)

	u, err := st.VerifyPassword(ctx, "race@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "race@example.com", u.Email)
}

func TestPostgres_RefreshRotationOneWinner(t *testing.T) {
	st, _ := setupPostgres(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "rot@example.com", "secret1", "R")
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, st.StoreRefreshToken(ctx, u.ID, "r0", exp))

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.RotateRefreshToken(ctx, u.ID, "r0", fmt.Sprintf("r1-%d", i), exp)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)
	}
	assert.Equal(t, 1, ok)

	_, err = st.FindRefreshToken(ctx, u.ID, "r0")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_ConcurrentForgotOneValid(t *testing.T) {
	st, db := setupPostgres(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "forgot@example.com", "secret1", "F")
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.IssueResetToken(ctx, u.ID, cryptox.HashToken(fmt.Sprintf("raw-%d", i)), exp)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "issuer %d", i)
	}

	var valid, total int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FILTER (WHERE is_valid), count(*) FROM password_reset_tokens WHERE user_id = $1`, u.ID).
		Scan(&valid, &total))
	assert.Equal(t, 1, valid)
	assert.Equal(t, n, total)

	var usable int
	for i := 0; i < n; i++ {
		if _, err := st.ConsumeResetToken(ctx, u.ID, fmt.Sprintf("raw-%d", i)); err == nil {
			usable++
		} else {
			assert.ErrorIs(t, err, common.ErrorNotFound)
		}
	}
	assert.Equal(t, 1, usable)
}

func TestPostgres_ResetRedeemOnce(t *testing.T) {
	st, _ := setupPostgres(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "reset@example.com", "secret1", "R")
	require.NoError(t, err)
	require.NoError(t, st.StoreRefreshToken(ctx, u.ID, "live", time.Now().Add(time.Hour)))

	raw, digest, err := cryptox.NewResetToken()
	require.NoError(t, err)
	require.NoError(t, st.IssueResetToken(ctx, u.ID, digest, time.Now().Add(time.Hour)))

	_, err = st.ConsumeResetToken(ctx, u.ID, raw)
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.RedeemResetToken(ctx, u.ID, raw, "brand-new")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken)
	}
	assert.Equal(t, 1, ok)

	_, err = st.VerifyPassword(ctx, "reset@example.com", "brand-new")
	require.NoError(t, err)
	_, err = st.FindRefreshToken(ctx, u.ID, "live")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_PurgeExpired(t *testing.T) {
	st, _ := setupPostgres(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "purge@example.com", "secret1", "R")
	require.NoError(t, err)
	require.NoError(t, st.StoreRefreshToken(ctx, u.ID, "old", time.Now().Add(-time.Minute)))
	require.NoError(t, st.StoreRefreshToken(ctx, u.ID, "new", time.Now().Add(time.Hour)))

	res, err := st.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RefreshTokens)

	_, err = st.FindRefreshToken(ctx, u.ID, "new")
	assert.NoError(t, err)
}
