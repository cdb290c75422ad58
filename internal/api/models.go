package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
)

// RegisterRequest is the payload for the registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest is the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// RefreshRequest is the payload for the token refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is the successful response for login and refresh.
type AuthResponse struct {
	UserID       uuid.UUID `json:"user_id,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
}

// RegisterResponse is the successful response for registration.
type RegisterResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	Title       string     `json:"title"                 validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"max=2000"`
	Priority    string     `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the payload for updating a task. Absent fields are
// left unchanged; clear_due_date removes the due date.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"       validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status       *string    `json:"status,omitempty"      validate:"omitempty,oneof=todo in_progress done archived"`
	Priority     *string    `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
}

// BatchCreateRequest is the payload for the batch create endpoint.
type BatchCreateRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" validate:"required,min=1,max=100,dive"`
}

// BatchStatusRequest is the payload for the batch status endpoint.
type BatchStatusRequest struct {
	TaskIDs []uuid.UUID `json:"task_ids" validate:"required,min=1,max=100"`
	Status  string      `json:"status"   validate:"required,oneof=todo in_progress done archived"`
}

// TaskResponse is the representation of one task.
type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskListResponse is one page of tasks plus pagination metadata.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// BatchTasksResponse is the successful response for batch endpoints.
type BatchTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// toTaskResponse converts a domain task to its API representation.
func toTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		DueDate:     task.DueDate,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// toTaskResponses converts a slice of domain tasks.
func toTaskResponses(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	return out
}
