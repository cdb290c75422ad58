package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/platform/logger"
	"github.com/taskloom/taskloom/internal/store"
)

// CreateTaskParams carries the caller-supplied fields for a new task.
type CreateTaskParams struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     *time.Time
}

// UpdateTaskParams carries the mutable fields of a task; nil pointers
// leave the field untouched.
type UpdateTaskParams struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	Priority    *domain.TaskPriority
	DueDate     *time.Time
	ClearDue    bool
}

// TaskService implements the task operations with per-user ownership
// enforcement. Status transitions emit events consumed by the background
// workers; batch operations run in retryable all-or-nothing transactions.
type TaskService struct {
	db      *sql.DB
	tasks   store.TaskStore
	emitter events.Emitter
	retry   store.RetryOptions
}

// NewTaskService creates a TaskService. retry governs the batch
// operations' transaction retries.
func NewTaskService(db *sql.DB, tasks store.TaskStore, emitter events.Emitter, retry store.RetryOptions) *TaskService {
	return &TaskService{
		db:      db,
		tasks:   tasks,
		emitter: emitter,
		retry:   retry,
	}
}

// CreateTask creates a task owned by userID.
func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, params CreateTaskParams) (*domain.Task, error) {
	task, err := domain.NewTask(userID, params.Title, params.Description, params.Priority, params.DueDate)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns the task when it exists and belongs to userID. A task
// owned by someone else reads as not found so the API never confirms
// other tenants' task IDs.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns one page of the user's tasks.
func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID, filter store.TaskFilter) (*store.TaskPage, error) {
	return s.tasks.ListByUser(ctx, userID, filter)
}

// UpdateTask applies the given changes to the user's task. Status changes
// go through the domain transition rules and emit a status-changed event
// after the row is persisted.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, params UpdateTaskParams) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		task.Title = *params.Title
	}
	if params.Description != nil {
		task.Description = *params.Description
	}
	if params.Priority != nil {
		task.Priority = *params.Priority
	}
	if params.ClearDue {
		task.DueDate = nil
	} else if params.DueDate != nil {
		task.DueDate = params.DueDate
	}

	previous := task.Status
	if params.Status != nil && *params.Status != previous {
		if err := task.ChangeStatus(*params.Status); err != nil {
			return nil, err
		}
	}
	task.UpdatedAt = time.Now().UTC()

	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.Status != previous {
		s.emitStatusChanged(ctx, task, previous)
	}

	return task, nil
}

// DeleteTask removes the user's task.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, taskID)
}

// BatchCreate creates all the given tasks in one transaction: either every
// task is persisted or none are. Transient database failures retry the
// whole batch.
func (s *TaskService) BatchCreate(ctx context.Context, userID uuid.UUID, items []CreateTaskParams) ([]*domain.Task, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	// Build and validate every task up front so validation failures never
	// reach the database.
	tasks := make([]*domain.Task, 0, len(items))
	for _, params := range items {
		task, err := domain.NewTask(userID, params.Title, params.Description, params.Priority, params.DueDate)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	err := store.RunInTransactionWithRetry(ctx, s.db, s.retry, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.tasks.WithTx(tx)
		for _, task := range tasks {
			if err := txStore.Create(ctx, task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// BatchUpdateStatus moves all the given tasks to the target status in one
// transaction. Every task must exist, belong to userID, and allow the
// transition; otherwise nothing is committed and the offending error is
// returned. Status-changed events are emitted only after the commit.
func (s *TaskService) BatchUpdateStatus(ctx context.Context, userID uuid.UUID, taskIDs []uuid.UUID, to domain.TaskStatus) ([]*domain.Task, error) {
	if len(taskIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(taskIDs) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	if !domain.ValidTaskStatus(to) {
		return nil, domain.ErrInvalidTaskStatus
	}

	type changed struct {
		task *domain.Task
		from domain.TaskStatus
	}

	var applied []changed
	err := store.RunInTransactionWithRetry(ctx, s.db, s.retry, func(ctx context.Context, tx *sql.Tx) error {
		// A retry starts from scratch; drop results of the failed attempt.
		applied = applied[:0]

		txStore := s.tasks.WithTx(tx)
		for _, id := range taskIDs {
			task, err := txStore.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if task.UserID != userID {
				return store.ErrTaskNotFound
			}

			from := task.Status
			if from != to {
				if err := task.ChangeStatus(to); err != nil {
					return err
				}
				if err := txStore.Update(ctx, task); err != nil {
					return err
				}
			}
			applied = append(applied, changed{task: task, from: from})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.Task, 0, len(applied))
	for _, c := range applied {
		tasks = append(tasks, c.task)
		if c.from != c.task.Status {
			s.emitStatusChanged(ctx, c.task, c.from)
		}
	}
	return tasks, nil
}

// emitStatusChanged publishes a status-changed event. Emission failures
// are logged, not propagated: the write already committed and the workers
// are best-effort consumers.
func (s *TaskService) emitStatusChanged(ctx context.Context, task *domain.Task, from domain.TaskStatus) {
	event, err := events.New(events.TypeTaskStatusChanged, events.TaskStatusChangedPayload{
		TaskID:    task.ID,
		UserID:    task.UserID,
		From:      from,
		To:        task.Status,
		ChangedAt: task.UpdatedAt,
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to build status event",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		logger.FromContext(ctx).Error("failed to emit status event",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}
}
