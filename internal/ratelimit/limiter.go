package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/platform/logger"
)

// Policy is an immutable per-route rate limit: at most Limit attempts per
// trailing Window. KeyPrefix namespaces the store keys so different routes
// never share budget.
type Policy struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// Result is the outcome of a rate limit check. It is derived, never stored.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when the request was allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, the
// granularity used by the Retry-After header.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Metrics receives limiter decision outcomes. Implementations must be safe
// for concurrent use.
type Metrics interface {
	Allowed(keyPrefix string)
	Denied(keyPrefix string)
	StoreFailure(keyPrefix string)
}

// noopMetrics is used when no metrics sink is configured.
type noopMetrics struct{}

func (noopMetrics) Allowed(string)      {}
func (noopMetrics) Denied(string)       {}
func (noopMetrics) StoreFailure(string) {}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics attaches a metrics sink to the limiter.
func WithMetrics(m Metrics) Option {
	return func(l *Limiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithClock overrides the limiter's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter decides allow/deny per identifier using the sliding-window log
// kept in a WindowStore. It is stateless and safe for concurrent use.
type Limiter struct {
	store   WindowStore
	metrics Metrics
	now     func() time.Time
}

// New creates a Limiter over the given store.
func New(store WindowStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records the current attempt for identifier and decides whether it
// is within policy. The decision is made against the count before this
// attempt was recorded; the attempt's entry is kept either way, so denied
// attempts still consume window budget.
//
// Check never returns an error: when the store is unreachable it fails
// open, logging the failure and allowing the request. Availability is
// deliberately preferred over strict enforcement here.
func (l *Limiter) Check(ctx context.Context, identifier string, policy Policy) Result {
	now := l.now().UTC()
	windowStart := now.Add(-policy.Window)
	key := policy.KeyPrefix + identifier

	count, err := l.store.Record(ctx, key, windowStart, now, uuid.NewString(), keyTTL(policy.Window))
	if err != nil {
		l.metrics.StoreFailure(policy.KeyPrefix)
		logger.FromContext(ctx).Error("rate limit store unavailable, failing open",
			slog.String("key_prefix", policy.KeyPrefix),
			slog.String("error", err.Error()))
		return failOpen(now, policy)
	}

	reset := now.Add(policy.Window)

	if count >= int64(policy.Limit) {
		l.metrics.Denied(policy.KeyPrefix)
		return Result{
			Allowed:    false,
			Limit:      policy.Limit,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
		}
	}

	l.metrics.Allowed(policy.KeyPrefix)
	return Result{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - int(count) - 1,
		ResetTime: reset,
	}
}

// Peek reports the identifier's current standing without recording an
// attempt. Like Check it fails open on store errors.
func (l *Limiter) Peek(ctx context.Context, identifier string, policy Policy) Result {
	now := l.now().UTC()
	windowStart := now.Add(-policy.Window)
	key := policy.KeyPrefix + identifier

	count, err := l.store.Count(ctx, key, windowStart)
	if err != nil {
		l.metrics.StoreFailure(policy.KeyPrefix)
		logger.FromContext(ctx).Error("rate limit store unavailable, failing open",
			slog.String("key_prefix", policy.KeyPrefix),
			slog.String("error", err.Error()))
		return failOpen(now, policy)
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	reset := now.Add(policy.Window)
	res := Result{
		Allowed:   count < int64(policy.Limit),
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetTime: reset,
	}
	if !res.Allowed {
		res.RetryAfter = reset.Sub(now)
	}
	return res
}

// Reset deletes the identifier's window outright, restoring its full
// budget. Used for operator intervention.
func (l *Limiter) Reset(ctx context.Context, identifier string, policy Policy) error {
	return l.store.Delete(ctx, policy.KeyPrefix+identifier)
}

// CleanupExpired prunes abandoned windows under the policy's prefix. The
// store's native expiry already reclaims them; this exists for operators
// who want reclamation on their own schedule.
func (l *Limiter) CleanupExpired(ctx context.Context, policy Policy) (int, error) {
	windowStart := l.now().UTC().Add(-policy.Window)
	return l.store.Cleanup(ctx, policy.KeyPrefix, windowStart)
}

// failOpen builds the best-effort allow result returned when the store
// cannot be consulted.
func failOpen(now time.Time, policy Policy) Result {
	return Result{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - 1,
		ResetTime: now.Add(policy.Window),
	}
}

// keyTTL converts the window into the whole-second TTL applied to store
// keys, rounding up so a key never outlives its last in-window entry by
// less than the window.
func keyTTL(window time.Duration) time.Duration {
	secs := int64(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
