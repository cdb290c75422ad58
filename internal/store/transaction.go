package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskloom/taskloom/internal/platform/logger"
)

// TxFn is a function that executes within a database transaction. The
// transaction is committed if the function returns nil and rolled back
// otherwise.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction executes fn within a transaction, rolling back on error
// or panic and committing on success. The original error from fn is
// returned unchanged so callers can inspect it with errors.Is.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback after panic failed",
					slog.String("error", rbErr.Error()),
					slog.Any("panic", p))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("transaction rollback failed",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}

	return nil
}

// RetryOptions controls RunInTransactionWithRetry.
type RetryOptions struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Backoff is the base delay; attempt n (1-based) waits Backoff * 2^(n-1).
	Backoff time.Duration

	// Retryable reports whether an error is transient. Only errors it
	// accepts trigger a retry; everything else fails immediately.
	Retryable func(error) bool
}

// DefaultRetryOptions returns the retry settings used for batch operations:
// three retries starting at 100ms, doubling each attempt.
func DefaultRetryOptions(retryable func(error) bool) RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		Backoff:    100 * time.Millisecond,
		Retryable:  retryable,
	}
}

// RunInTransactionWithRetry runs fn in a transaction, retrying the whole
// transaction with sequential exponential backoff when it fails with a
// transient error. Each attempt is all-or-nothing; a retry never observes
// partial state from a previous attempt.
func RunInTransactionWithRetry(ctx context.Context, db *sql.DB, opts RetryOptions, fn TxFn) error {
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		lastErr = RunInTransaction(ctx, db, fn)
		if lastErr == nil {
			return nil
		}

		if opts.Retryable == nil || !opts.Retryable(lastErr) {
			return lastErr
		}

		if attempt > opts.MaxRetries {
			break
		}

		delay := opts.Backoff * (1 << (attempt - 1))
		log.Warn("transient transaction failure, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
