// Package postgres implements the store interfaces on PostgreSQL via the
// pgx stdlib driver.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskloom/taskloom/internal/store"
)

// PostgreSQL error codes.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"

	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
	connectionExceptionCode  = "08000"
	connectionDoesNotExist   = "08003"
	connectionFailureCode    = "08006"
	cannotConnectNowCode     = "57P03"
)

// MapError maps a database error to the matching store sentinel, wrapping
// the original for context. Use on the result of every database operation
// so callers only ever see store errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case foreignKeyViolationCode, checkViolationCode, notNullViolationCode:
			return fmt.Errorf("%w: constraint %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
		}
	}

	return err
}

// IsTransient reports whether an error is on the allow-list of transient
// conditions worth retrying a whole transaction for: serialization
// failures, deadlocks, and connection loss. Everything else, constraint
// violations included, is permanent and retrying would only repeat it.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode,
			deadlockDetectedCode,
			connectionExceptionCode,
			connectionDoesNotExist,
			connectionFailureCode,
			cannotConnectNowCode:
			return true
		}
		return false
	}

	// Driver-level connection teardown surfaces as sql.ErrConnDone.
	return errors.Is(err, sql.ErrConnDone)
}
