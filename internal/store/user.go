package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
)

// UserStore defines the interface for user persistence.
type UserStore interface {
	// Create saves a new user. The user must already carry a hashed
	// password. Returns ErrEmailExists if the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by email address.
	// Returns ErrUserNotFound if the user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user's email and hashed password.
	// Returns ErrUserNotFound if the user does not exist and
	// ErrEmailExists when updating to an email already in use.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user and, via cascade, their tasks.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a UserStore bound to the given transaction so that
	// multiple operations can share one atomic unit.
	WithTx(tx *sql.Tx) UserStore
}
