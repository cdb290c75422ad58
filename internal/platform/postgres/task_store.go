package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/store"
)

// defaultPageSize caps listings when the filter does not set a limit.
const defaultPageSize = 50

// maxPageSize is the hard cap on one page regardless of the filter.
const maxPageSize = 200

// TaskStore implements store.TaskStore on PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore over the given connection.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description,
		task.Status, task.Priority, task.DueDate, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	const query = `
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE id = $1`

	var task domain.Task
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description,
		&task.Status, &task.Priority, &task.DueDate, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}

	return &task, nil
}

// ListByUser implements store.TaskStore.ListByUser. Filters are ANDed;
// results come newest first.
func (s *TaskStore) ListByUser(ctx context.Context, userID uuid.UUID, filter store.TaskFilter) (*store.TaskPage, error) {
	where := "WHERE user_id = $1"
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if filter.DueAfter != nil {
		args = append(args, *filter.DueAfter)
		where += fmt.Sprintf(" AND due_date >= $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	return &store.TaskPage{Tasks: tasks, Total: total}, nil
}

// Update implements store.TaskStore.Update.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, due_date = $6, updated_at = $7
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status,
		task.Priority, task.DueDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update task: %w", MapError(err))
	}

	return checkAffected(res, store.ErrTaskNotFound)
}

// Delete implements store.TaskStore.Delete.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", MapError(err))
	}
	return checkAffected(res, store.ErrTaskNotFound)
}

// ListDueBetween implements store.TaskStore.ListDueBetween.
func (s *TaskStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error) {
	const query = `
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE due_date >= $1 AND due_date < $2
		  AND status NOT IN ($3, $4)
		ORDER BY due_date ASC`

	rows, err := s.db.QueryContext(ctx, query, from, to, domain.TaskStatusDone, domain.TaskStatusArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// WithTx implements store.TaskStore.WithTx.
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &TaskStore{db: tx}
}

// scanTasks reads every remaining row.
func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description,
			&task.Status, &task.Priority, &task.DueDate, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", MapError(err))
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", MapError(err))
	}
	return tasks, nil
}
