package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memRefresh struct {
	userID    string
	expiresAt time.Time
}

type memReset struct {
	userID    string
	digest    string
	valid     bool
	expiresAt time.Time
}

// memStore is an in-memory CredentialStore. Every method holds the lock for
// its whole body, which gives it the same all-or-nothing behaviour as the
// SQL store's transactions.
type memStore struct {
	mu      sync.Mutex
	now     func() time.Time
	users   map[string]*models.User
	refresh map[string]memRefresh // by token digest
	resets  []*memReset

	// fail makes the named operation return the error without side effects.
	fail map[string]error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:     now,
		users:   map[string]*models.User{},
		refresh: map[string]memRefresh{},
		fail:    map[string]error{},
	}
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *memStore) byEmail(email string) *models.User {
	email = models.NormalizeEmail(email)
	for _, u := range m.users {
		if u.IsActive && u.Email == email {
			return u
		}
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["FindByEmail"]; err != nil {
		return nil, err
	}
	if u := m.byEmail(email); u != nil {
		return copyUser(u), nil
	}
	return nil, common.ErrorNotFound
}

func (m *memStore) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["FindByID"]; err != nil {
		return nil, err
	}
	if u, ok := m.users[id]; ok && u.IsActive {
		return copyUser(u), nil
	}
	return nil, common.ErrorNotFound
}

func (m *memStore) CreateUser(_ context.Context, email, password, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["CreateUser"]; err != nil {
		return nil, err
	}
	if m.byEmail(email) != nil {
		return nil, common.ErrDuplicateEmail
	}
	now := m.now()
	u := &models.User{
		ID:             uuid.NewString(),
		Email:          models.NormalizeEmail(email),
		PasswordDigest: "h:" + password,
		DisplayName:    name,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.users[u.ID] = u
	return copyUser(u), nil
}

func (m *memStore) VerifyPassword(_ context.Context, email, password string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmail(email)
	if u == nil || u.PasswordDigest != "h:"+password {
		return nil, common.ErrInvalidCredentials
	}
	return copyUser(u), nil
}

func (m *memStore) replacePassword(userID, password string) error {
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return common.ErrorNotFound
	}
	u.PasswordDigest = "h:" + password
	u.UpdatedAt = m.now()
	for d, r := range m.refresh {
		if r.userID == userID {
			delete(m.refresh, d)
		}
	}
	for _, r := range m.resets {
		if r.userID == userID {
			r.valid = false
		}
	}
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["UpdatePassword"]; err != nil {
		return err
	}
	return m.replacePassword(userID, newPassword)
}

func (m *memStore) UpdateProfile(_ context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return nil, common.ErrorNotFound
	}
	if upd.Email != nil {
		e := models.NormalizeEmail(*upd.Email)
		if other := m.byEmail(e); other != nil && other.ID != userID {
			return nil, common.ErrDuplicateEmail
		}
		if e != u.Email {
			u.Email = e
			u.IsVerified = false
		}
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	u.UpdatedAt = m.now()
	return copyUser(u), nil
}

func (m *memStore) StoreRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["StoreRefreshToken"]; err != nil {
		return err
	}
	m.refresh[cryptox.HashToken(token)] = memRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) live(userID, digest string) bool {
	r, ok := m.refresh[digest]
	return ok && r.userID == userID && r.expiresAt.After(m.now())
}

func (m *memStore) FindRefreshToken(_ context.Context, userID, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["FindRefreshToken"]; err != nil {
		return nil, err
	}
	d := cryptox.HashToken(token)
	if !m.live(userID, d) {
		return nil, common.ErrorNotFound
	}
	r := m.refresh[d]
	return &models.RefreshToken{UserID: r.userID, TokenDigest: d, ExpiresAt: r.expiresAt}, nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, userID, oldToken, newToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["RotateRefreshToken"]; err != nil {
		return err
	}
	d := cryptox.HashToken(oldToken)
	if !m.live(userID, d) {
		return common.ErrInvalidRefreshToken
	}
	delete(m.refresh, d)
	m.refresh[cryptox.HashToken(newToken)] = memRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) RemoveRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["RemoveRefreshToken"]; err != nil {
		return err
	}
	delete(m.refresh, cryptox.HashToken(token))
	return nil
}

func (m *memStore) IssueResetToken(_ context.Context, userID, tokenDigest string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["IssueResetToken"]; err != nil {
		return err
	}
	for _, r := range m.resets {
		if r.userID == userID {
			r.valid = false
		}
	}
	m.resets = append(m.resets, &memReset{userID: userID, digest: tokenDigest, valid: true, expiresAt: expiresAt})
	return nil
}

func (m *memStore) usableReset(userID, raw string) *memReset {
	d := cryptox.HashToken(raw)
	for _, r := range m.resets {
		if r.userID == userID && r.digest == d && r.valid && r.expiresAt.After(m.now()) {
			return r
		}
	}
	return nil
}

func (m *memStore) ConsumeResetToken(_ context.Context, userID, rawToken string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usableReset(userID, rawToken) == nil {
		return nil, common.ErrorNotFound
	}
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (m *memStore) RedeemResetToken(_ context.Context, userID, rawToken, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["RedeemResetToken"]; err != nil {
		return err
	}
	r := m.usableReset(userID, rawToken)
	if r == nil {
		return common.ErrInvalidOrExpiredToken
	}
	r.valid = false
	return m.replacePassword(userID, newPassword)
}

func (m *memStore) resetRows(userID string) []memReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memReset
	for _, r := range m.resets {
		if r.userID == userID {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type countingRecorder struct {
	mu      sync.Mutex
	ops     map[string]int
	replays int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string]int{}}
}

func (r *countingRecorder) AuthOperation(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op+"/"+outcome]++
}

func (r *countingRecorder) RefreshReplay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays++
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[key]
}

func (r *countingRecorder) replayCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replays
}

func newCodec(now func() time.Time) *auth.Codec {
	c, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "authkeeper",
		Now:           now,
	})
	if err != nil {
		panic(err)
	}
	return c
}
