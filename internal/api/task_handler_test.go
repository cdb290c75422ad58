package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/tasks"},
		{http.MethodGet, "/api/tasks"},
		{http.MethodGet, "/api/tasks/" + uuid.NewString()},
		{http.MethodPost, "/api/tasks/batch"},
		{http.MethodPost, "/api/tasks/batch/status"},
	} {
		rec := env.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")
	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	rec := env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{
		Title:    "prepare demo",
		Priority: "high",
		DueDate:  &due,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[TaskResponse](t, rec)
	assert.Equal(t, "prepare demo", created.Title)
	assert.Equal(t, "todo", created.Status)
	assert.Equal(t, "high", created.Priority)
	require.NotNil(t, created.DueDate)

	got := env.do(t, http.MethodGet, "/api/tasks/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, created.ID, decodeBody[TaskResponse](t, got).ID)
}

func TestCreateTaskDefaultsPriorityToMedium(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: "untriaged"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "medium", decodeBody[TaskResponse](t, rec).Priority)
}

func TestCreateTaskRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{
		Title:    "x",
		Priority: "urgent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskInvalidID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodGet, "/api/tasks/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskOwnedByAnotherUserIsNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, ownerToken := env.registerUser(t, "ana@example.com")
	_, otherToken := env.registerUser(t, "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/tasks", ownerToken, CreateTaskRequest{Title: "secret work"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[TaskResponse](t, rec)

	got := env.do(t, http.MethodGet, "/api/tasks/"+created.ID.String(), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	first := decodeBody[TaskResponse](t, env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: "one"}))
	env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: "two"})

	status := "in_progress"
	rec := env.do(t, http.MethodPut, "/api/tasks/"+first.ID.String(), token, UpdateTaskRequest{Status: &status})
	require.Equal(t, http.StatusOK, rec.Code)

	list := env.do(t, http.MethodGet, "/api/tasks?status=in_progress", token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	page := decodeBody[TaskListResponse](t, list)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, first.ID, page.Tasks[0].ID)
	assert.Equal(t, 1, page.Total)
}

func TestListTasksRejectsBadFilter(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/tasks?status=bogus", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/tasks?limit=-5", token, nil).Code)
}

func TestUpdateTaskInvalidTransition(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	created := decodeBody[TaskResponse](t, env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: "stale"}))

	archived := "archived"
	rec := env.do(t, http.MethodPut, "/api/tasks/"+created.ID.String(), token, UpdateTaskRequest{Status: &archived})
	require.Equal(t, http.StatusOK, rec.Code)

	done := "done"
	rec = env.do(t, http.MethodPut, "/api/tasks/"+created.ID.String(), token, UpdateTaskRequest{Status: &done})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid status transition")
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	created := decodeBody[TaskResponse](t, env.do(t, http.MethodPost, "/api/tasks", token, CreateTaskRequest{Title: "temp"}))

	rec := env.do(t, http.MethodDelete, "/api/tasks/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/tasks/"+created.ID.String(), token, nil).Code)
}

func TestBatchCreateRejectsEmptyPayload(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodPost, "/api/tasks/batch", token, BatchCreateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchStatusRejectsInvalidStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodPost, "/api/tasks/batch/status", token, BatchStatusRequest{
		TaskIDs: []uuid.UUID{uuid.New()},
		Status:  "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitHeadersOnTaskRoutes(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ana@example.com")

	rec := env.do(t, http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAdminBreakerEndpoints(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ops@example.com")

	rec := env.do(t, http.MethodGet, "/api/admin/breakers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[BreakerStatusResponse](t, rec)
	assert.NotNil(t, status.Breakers)

	rec = env.do(t, http.MethodPost, "/api/admin/breakers/webhook/reset", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminRateLimitReset(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, token := env.registerUser(t, "ops@example.com")

	rec := env.do(t, http.MethodPost, "/api/admin/ratelimit/api/abc123/reset", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/ratelimit/unknown/abc123/reset", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
