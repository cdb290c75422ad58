package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/api/middleware"
	"github.com/taskloom/taskloom/internal/api/shared"
	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/service"
	"github.com/taskloom/taskloom/internal/store"
)

// TaskHandler serves the task CRUD and batch endpoints. All routes
// require authentication; the user ID always comes from the token, never
// from the payload.
type TaskHandler struct {
	tasks     *service.TaskService
	validator *validator.Validate
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
	}
}

// Create handles POST /tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), userID, createParams(req))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, toTaskResponse(task))
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), userID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(task))
}

// List handles GET /tasks with optional status, priority, limit, and
// offset query parameters.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	filter, err := listFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.tasks.ListTasks(r.Context(), userID, filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:  toTaskResponses(page.Tasks),
		Total:  page.Total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Update handles PUT /tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.UpdateTask(r.Context(), userID, taskID, updateParams(req))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(task))
}

// Delete handles DELETE /tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), userID, taskID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BatchCreate handles POST /tasks/batch. Either every task in the payload
// is created or none are.
func (h *TaskHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req BatchCreateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	items := make([]service.CreateTaskParams, 0, len(req.Tasks))
	for _, item := range req.Tasks {
		items = append(items, createParams(item))
	}

	tasks, err := h.tasks.BatchCreate(r.Context(), userID, items)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, BatchTasksResponse{Tasks: toTaskResponses(tasks)})
}

// BatchUpdateStatus handles POST /tasks/batch/status. All listed tasks
// move to the target status atomically.
func (h *TaskHandler) BatchUpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req BatchStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	tasks, err := h.tasks.BatchUpdateStatus(r.Context(), userID, req.TaskIDs, domain.TaskStatus(req.Status))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BatchTasksResponse{Tasks: toTaskResponses(tasks)})
}

func createParams(req CreateTaskRequest) service.CreateTaskParams {
	return service.CreateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.TaskPriority(req.Priority),
		DueDate:     req.DueDate,
	}
}

func updateParams(req UpdateTaskRequest) service.UpdateTaskParams {
	params := service.UpdateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDueDate,
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		params.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		params.Priority = &priority
	}
	return params
}

// listFilter builds a store filter from query parameters.
func listFilter(r *http.Request) (store.TaskFilter, error) {
	var filter store.TaskFilter
	q := r.URL.Query()

	if status := q.Get("status"); status != "" {
		if !domain.ValidTaskStatus(domain.TaskStatus(status)) {
			return filter, domain.ErrInvalidTaskStatus
		}
		filter.Status = domain.TaskStatus(status)
	}
	if priority := q.Get("priority"); priority != "" {
		if !domain.ValidTaskPriority(domain.TaskPriority(priority)) {
			return filter, domain.ErrInvalidPriority
		}
		filter.Priority = domain.TaskPriority(priority)
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filter, domain.ErrValidation
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return filter, domain.ErrValidation
		}
		filter.Offset = n
	}

	return filter, nil
}
