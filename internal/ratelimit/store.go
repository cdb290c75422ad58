package ratelimit

import (
	"context"
	"time"
)

// WindowStore is the minimal contract the limiter needs from the shared
// store: sorted-set style windows keyed by timestamp with atomic
// multi-operation execution. Implementations must be safe for concurrent
// use from many processes.
type WindowStore interface {
	// Record executes, as a single atomic unit against key:
	//   1. remove all entries with a timestamp before windowStart,
	//   2. count the remaining entries,
	//   3. add member with timestamp now,
	//   4. refresh the key's TTL to ttl.
	// It returns the count from step 2, i.e. the window occupancy before
	// the current attempt was recorded.
	Record(ctx context.Context, key string, windowStart, now time.Time, member string, ttl time.Duration) (int64, error)

	// Count removes entries older than windowStart and returns the live
	// count without recording an attempt.
	Count(ctx context.Context, key string, windowStart time.Time) (int64, error)

	// Delete removes the key outright, resetting the identifier's window.
	Delete(ctx context.Context, key string) error

	// Cleanup walks keys under prefix, drops entries older than
	// windowStart, and deletes keys left empty. It returns the number of
	// keys deleted. This is advisory housekeeping; the store's native
	// expiry is what actually bounds memory.
	Cleanup(ctx context.Context, prefix string, windowStart time.Time) (int, error)
}
