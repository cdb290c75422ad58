package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the workflow state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusArchived   TaskStatus = "archived"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

// Possible task priority values.
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Common validation errors for Task.
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID   = errors.New("task user ID cannot be empty")
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong  = errors.New("task title must be at most 200 characters")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidPriority   = errors.New("invalid task priority")
)

// Task is a single unit of work owned by a user.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTask creates a new Task owned by the given user. Status starts at
// "todo"; priority defaults to medium when empty.
// Returns an error if validation fails.
func NewTask(userID uuid.UUID, title, description string, priority TaskPriority, dueDate *time.Time) (*Task, error) {
	if priority == "" {
		priority = TaskPriorityMedium
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      TaskStatusTodo,
		Priority:    priority,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	if len(t.Title) > 200 {
		return ErrTaskTitleTooLong
	}

	if !ValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if !ValidTaskPriority(t.Priority) {
		return ErrInvalidPriority
	}

	return nil
}

// ChangeStatus moves the task to the given status, enforcing the legal
// transitions, and refreshes UpdatedAt.
// Returns ErrInvalidStatusTransition when the move is not allowed.
func (t *Task) ChangeStatus(status TaskStatus) error {
	if !ValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}

	if !CanTransition(t.Status, status) {
		return ErrInvalidStatusTransition
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// CanTransition reports whether a task may move from one status to another.
// Archived is terminal except for unarchiving back to todo.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}

	switch from {
	case TaskStatusTodo:
		return to == TaskStatusInProgress || to == TaskStatusDone || to == TaskStatusArchived
	case TaskStatusInProgress:
		return to == TaskStatusTodo || to == TaskStatusDone || to == TaskStatusArchived
	case TaskStatusDone:
		return to == TaskStatusTodo || to == TaskStatusInProgress || to == TaskStatusArchived
	case TaskStatusArchived:
		return to == TaskStatusTodo
	default:
		return false
	}
}

// ValidTaskStatus checks if the given status is a valid TaskStatus.
func ValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusArchived:
		return true
	default:
		return false
	}
}

// ValidTaskPriority checks if the given priority is a valid TaskPriority.
func ValidTaskPriority(priority TaskPriority) bool {
	switch priority {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	default:
		return false
	}
}
