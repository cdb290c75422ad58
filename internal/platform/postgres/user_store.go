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

// UserStore implements store.UserStore on PostgreSQL.
type UserStore struct {
	db store.DBTX
}

// NewUserStore creates a UserStore over the given connection. The caller
// owns the connection's lifecycle.
func NewUserStore(db store.DBTX) *UserStore {
	return &UserStore{db: db}
}

var _ store.UserStore = (*UserStore)(nil)

// Create implements store.UserStore.Create.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if user.HashedPassword == "" {
		return domain.ErrEmptyHashedPassword
	}

	const query = `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.HashedPassword, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if store.IsDuplicateError(MapError(err)) {
			return store.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", MapError(err))
	}

	return nil
}

// GetByID implements store.UserStore.GetByID.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const query = `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE id = $1`

	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail implements store.UserStore.GetByEmail.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1`

	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// Update implements store.UserStore.Update.
func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE users
		SET email = $2, hashed_password = $3, updated_at = $4
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.HashedPassword, time.Now().UTC())
	if err != nil {
		if store.IsDuplicateError(MapError(err)) {
			return store.ErrEmailExists
		}
		return fmt.Errorf("failed to update user: %w", MapError(err))
	}

	return checkAffected(res, store.ErrUserNotFound)
}

// Delete implements store.UserStore.Delete.
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", MapError(err))
	}
	return checkAffected(res, store.ErrUserNotFound)
}

// WithTx implements store.UserStore.WithTx.
func (s *UserStore) WithTx(tx *sql.Tx) store.UserStore {
	return &UserStore{db: tx}
}

// scanUser reads one user row.
func (s *UserStore) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", MapError(err))
	}
	return &user, nil
}

// checkAffected converts a zero-row result into notFound.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
