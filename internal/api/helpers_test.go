package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskloom/taskloom/internal/api/middleware"
	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/ratelimit"
	"github.com/taskloom/taskloom/internal/service"
	"github.com/taskloom/taskloom/internal/service/auth"
	"github.com/taskloom/taskloom/internal/store"
)

// memUserStore and memTaskStore are in-memory stores for handler tests.

type memUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]*domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (s *memUserStore) Create(_ context.Context, user *domain.User) error {
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

func (s *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memUserStore) Update(_ context.Context, user *domain.User) error {
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

func (s *memUserStore) Delete(_ context.Context, id uuid.UUID) error {
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

func (s *memUserStore) WithTx(*sql.Tx) store.UserStore { return s }

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *memTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *memTaskStore) ListByUser(_ context.Context, userID uuid.UUID, filter store.TaskFilter) (*store.TaskPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &store.TaskPage{}
	for _, task := range s.tasks {
		if task.UserID != userID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		copied := *task
		page.Tasks = append(page.Tasks, &copied)
	}
	page.Total = len(page.Tasks)
	return page, nil
}

func (s *memTaskStore) Update(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memTaskStore) ListDueBetween(context.Context, time.Time, time.Time) ([]*domain.Task, error) {
	return nil, nil
}

func (s *memTaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

type dropEmitter struct{}

func (dropEmitter) Emit(context.Context, *events.Event) error { return nil }

// testEnv wires a full router over in-memory stores.
type testEnv struct {
	router http.Handler
	jwt    auth.JWTService
	users  *service.UserService
}

type envOptions struct {
	authPolicy *ratelimit.Policy
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwt := auth.NewHMACJWTService(strings.Repeat("t", 32), 15*time.Minute, 24*time.Hour)
	passwords := auth.NewBcryptPasswordService(bcrypt.MinCost)

	userSvc := service.NewUserService(newMemUserStore(), passwords, passwords, jwt)
	taskSvc := service.NewTaskService(nil, newMemTaskStore(), dropEmitter{},
		store.DefaultRetryOptions(func(error) bool { return false }))

	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())
	apiPolicy := ratelimit.Policy{Limit: 1000, Window: time.Minute, KeyPrefix: "api:"}
	authPolicy := ratelimit.Policy{Limit: 1000, Window: time.Minute, KeyPrefix: "auth:"}
	if opts.authPolicy != nil {
		authPolicy = *opts.authPolicy
	}

	router := NewRouter(RouterDeps{
		Logger:      log,
		Auth:        NewAuthHandler(userSvc),
		Tasks:       NewTaskHandler(taskSvc),
		Admin:       NewAdminHandler(breaker.NewRegistry(breaker.DefaultOptions()), limiter, RateLimitPolicies(apiPolicy, authPolicy)),
		AuthGuard:   middleware.NewAuthMiddleware(jwt),
		APILimiter:  middleware.NewRateLimiter(limiter, apiPolicy),
		AuthLimiter: middleware.NewRateLimiter(limiter, authPolicy),
	})

	return &testEnv{router: router, jwt: jwt, users: userSvc}
}

// registerUser creates an account directly through the service and
// returns its ID with a valid access token.
func (e *testEnv) registerUser(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	user, err := e.users.Register(context.Background(), email, "a long enough password")
	require.NoError(t, err)
	token, err := e.jwt.GenerateToken(context.Background(), user.ID)
	require.NoError(t, err)
	return user.ID, token
}

// do sends a JSON request through the router.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.55:1234"
	req.Header.Set("User-Agent", "taskloom-test/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
