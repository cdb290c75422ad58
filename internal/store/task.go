package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
)

// TaskFilter narrows a task listing. Zero values mean "no constraint".
type TaskFilter struct {
	Status   domain.TaskStatus
	Priority domain.TaskPriority
	DueAfter *time.Time
	// Limit caps the page size; 0 falls back to the implementation default.
	Limit  int
	Offset int
}

// TaskPage is one page of a task listing plus the total match count,
// so handlers can build pagination metadata without a second query.
type TaskPage struct {
	Tasks []*domain.Task
	Total int
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by ID regardless of owner; ownership
	// checks belong to the service layer.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByUser returns one page of the user's tasks, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, filter TaskFilter) (*TaskPage, error)

	// Update persists all mutable fields of the task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListDueBetween returns tasks of any user with a due date inside
	// [from, to) that are not done or archived. Used by the reminder
	// scheduler.
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error)

	// WithTx returns a TaskStore bound to the given transaction.
	WithTx(tx *sql.Tx) TaskStore
}
