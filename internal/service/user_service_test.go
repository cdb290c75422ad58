package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/service/auth"
	"github.com/taskloom/taskloom/internal/store"
)

// fakeUserStore is an in-memory store.UserStore keyed by ID and email.
type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (s *fakeUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return store.ErrEmailExists
	}
	copied := *user
	s.byID[user.ID] = &copied
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) Update(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; !ok {
		return store.ErrUserNotFound
	}
	copied := *user
	s.byID[user.ID] = &copied
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return store.ErrUserNotFound
	}
	delete(s.byEmail, user.Email)
	delete(s.byID, id)
	return nil
}

func (s *fakeUserStore) WithTx(*sql.Tx) store.UserStore { return s }

func newTestUserService(t *testing.T) (*UserService, *fakeUserStore) {
	t.Helper()
	users := newFakeUserStore()
	passwords := auth.NewBcryptPasswordService(bcrypt.MinCost)
	jwt := auth.NewHMACJWTService(strings.Repeat("s", 32), 15*time.Minute, 7*24*time.Hour)
	return NewUserService(users, passwords, passwords, jwt), users
}

const testPassword = "correct horse battery"

func TestRegisterHashesPassword(t *testing.T) {
	svc, users := newTestUserService(t)

	user, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)
	assert.Empty(t, user.Password)
	assert.NotEmpty(t, user.HashedPassword)
	assert.NotEqual(t, testPassword, user.HashedPassword)

	stored, err := users.GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "ana@example.com", testPassword)
	assert.ErrorIs(t, err, store.ErrEmailExists)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), "ana@example.com", "short")
	assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, _ := newTestUserService(t)

	registered, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	user, pair, err := svc.Login(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "ana@example.com", "incorrect password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, _, err := svc.Login(context.Background(), "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)
	_, pair, err := svc.Login(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	fresh, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEmpty(t, fresh.RefreshToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)
	_, pair, err := svc.Login(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrWrongTokenType)
}

func TestRefreshFailsForDeletedUser(t *testing.T) {
	svc, users := newTestUserService(t)

	registered, err := svc.Register(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)
	_, pair, err := svc.Login(context.Background(), "ana@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, users.Delete(context.Background(), registered.ID))

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
