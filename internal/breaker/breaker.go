// Package breaker implements a per-dependency circuit breaker: a
// three-state guard (closed, open, half-open) that stops invoking a
// failing downstream for a cooldown period and probes for recovery before
// resuming normal traffic.
//
// Breaker state is held in-process. In a multi-instance deployment each
// process judges a dependency's health independently; there is no
// cross-instance coordination. That is acceptable for protecting a
// process's own outbound calls and is a documented scaling limitation.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/taskloom/taskloom/internal/platform/logger"
)

// State is the circuit breaker state for one dependency.
type State int

// Breaker states. A breaker cycles between these for the life of the
// process; there is no terminal state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrOpen is the sentinel matched by errors.Is for open-circuit
// rejections. Callers needing the dependency name use errors.As with
// *OpenError.
var ErrOpen = errors.New("circuit open")

// OpenError is returned when a call is rejected because the dependency's
// circuit is open. It is distinct from any error the wrapped operation
// returns, so callers can tell "circuit open" from "operation failed" and
// run fallback logic.
type OpenError struct {
	Dependency string
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return "circuit open for " + e.Dependency
}

// Is reports that an OpenError matches ErrOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Options configures one dependency's breaker.
type Options struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit while closed.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before allowing
	// a half-open probe.
	RecoveryTimeout time.Duration

	// ExpectedResponseTime is observational only: operations slower than
	// this are logged, never failed or cancelled. The breaker imposes no
	// timeout of its own; compose one around the operation if bounded
	// latency is needed.
	ExpectedResponseTime time.Duration

	// MonitoringWindow is reserved for future windowed failure
	// accounting. The current implementation counts unbounded consecutive
	// outcomes, not a rolling window.
	MonitoringWindow time.Duration
}

// DefaultOptions returns the breaker defaults.
func DefaultOptions() Options {
	return Options{
		FailureThreshold:     5,
		RecoveryTimeout:      30 * time.Second,
		ExpectedResponseTime: 5 * time.Second,
		MonitoringWindow:     60 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = def.FailureThreshold
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = def.RecoveryTimeout
	}
	if o.ExpectedResponseTime <= 0 {
		o.ExpectedResponseTime = def.ExpectedResponseTime
	}
	if o.MonitoringWindow <= 0 {
		o.MonitoringWindow = def.MonitoringWindow
	}
	return o
}

// Status is a point-in-time snapshot of one dependency's breaker.
type Status struct {
	State                State      `json:"state"`
	FailureCount         int        `json:"failure_count"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastFailure          *time.Time `json:"last_failure,omitempty"`
}

// StateChangeFunc is notified of every state transition.
type StateChangeFunc func(dependency string, from, to State)

// Registry owns the breakers, one per dependency name, created lazily on
// first use and retained for the process lifetime. It is constructed at
// startup and passed to every call site; there is no package-level shared
// state.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*circuit
	defaults Options
	onChange StateChangeFunc
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStateChange registers a callback invoked on every transition. The
// callback runs while the breaker's lock is held, so it must be fast and
// must not call back into the registry.
func WithStateChange(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

// WithClock overrides the registry's time source. Used by tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a Registry whose breakers default to the given
// options.
func NewRegistry(defaults Options, opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*circuit),
		defaults: defaults.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op under the named dependency's breaker using the registry
// defaults. See DoWith.
func (r *Registry) Do(ctx context.Context, dependency string, op func(context.Context) error) error {
	return r.DoWith(ctx, dependency, r.defaults, op)
}

// DoWith runs op under the named dependency's breaker. The options apply
// only when this call creates the breaker: first writer wins, and later
// calls with different options for the same name are ignored.
//
// When the circuit is open and the recovery timeout has not elapsed, op is
// not invoked and an *OpenError is returned. Otherwise op's own error, if
// any, is re-raised unchanged after the breaker records the outcome.
func (r *Registry) DoWith(ctx context.Context, dependency string, opts Options, op func(context.Context) error) error {
	return r.circuitFor(dependency, opts).do(ctx, op)
}

// Execute runs op under the named dependency's breaker and returns its
// value. It is the generic companion to Registry.Do for operations that
// produce a result.
func Execute[T any](ctx context.Context, r *Registry, dependency string, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, dependency, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Status returns a snapshot of every known dependency.
func (r *Registry) Status() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.breakers))
	for name, c := range r.breakers {
		out[name] = c.status()
	}
	return out
}

// Reset forces the named dependency's breaker to closed with both counters
// zeroed, regardless of prior state. For operator intervention. Unknown
// names are a no-op.
func (r *Registry) Reset(dependency string) {
	r.mu.Lock()
	c, ok := r.breakers[dependency]
	r.mu.Unlock()
	if ok {
		c.reset()
	}
}

// circuitFor returns the dependency's breaker, creating it with opts on
// first reference.
func (r *Registry) circuitFor(dependency string, opts Options) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.breakers[dependency]
	if !ok {
		c = &circuit{
			name:     dependency,
			opts:     opts.withDefaults(),
			onChange: r.onChange,
			now:      r.now,
		}
		r.breakers[dependency] = c
	}
	return c
}

// circuit is the breaker state for one dependency. The mutex serializes
// state transitions; the wrapped operation itself runs outside the lock.
type circuit struct {
	name     string
	opts     Options
	onChange StateChangeFunc
	now      func() time.Time

	mu                   sync.Mutex
	state                State
	failureCount         int
	consecutiveSuccesses int
	lastFailure          time.Time
}

func (c *circuit) do(ctx context.Context, op func(context.Context) error) error {
	c.mu.Lock()
	if c.state == StateOpen {
		if c.now().Sub(c.lastFailure) >= c.opts.RecoveryTimeout {
			c.transition(StateHalfOpen)
		} else {
			c.mu.Unlock()
			return &OpenError{Dependency: c.name}
		}
	}
	c.mu.Unlock()

	start := c.now()
	err := op(ctx)
	elapsed := c.now().Sub(start)

	if elapsed > c.opts.ExpectedResponseTime {
		logger.FromContext(ctx).Warn("dependency slower than expected",
			slog.String("dependency", c.name),
			slog.Duration("elapsed", elapsed),
			slog.Duration("expected", c.opts.ExpectedResponseTime))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

// recordSuccess applies a successful outcome. Caller holds mu.
func (c *circuit) recordSuccess() {
	switch c.state {
	case StateClosed:
		c.failureCount = 0
	case StateHalfOpen:
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses >= recoveryTarget(c.opts.FailureThreshold) {
			c.transition(StateClosed)
			c.failureCount = 0
			c.consecutiveSuccesses = 0
		}
	}
}

// recordFailure applies a failed outcome. Caller holds mu.
func (c *circuit) recordFailure() {
	switch c.state {
	case StateClosed:
		c.failureCount++
		if c.failureCount >= c.opts.FailureThreshold {
			c.transition(StateOpen)
			c.lastFailure = c.now()
		}
	case StateHalfOpen:
		// A single failed probe re-opens the circuit.
		c.transition(StateOpen)
		c.consecutiveSuccesses = 0
		c.lastFailure = c.now()
	case StateOpen:
		// An in-flight call that started before the circuit opened; its
		// failure just refreshes the cooldown.
		c.lastFailure = c.now()
	}
}

// reset forces closed state with zeroed counters.
func (c *circuit) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		c.transition(StateClosed)
	}
	c.failureCount = 0
	c.consecutiveSuccesses = 0
	c.lastFailure = time.Time{}
}

// status returns a snapshot. Takes the circuit lock.
func (c *circuit) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:                c.state,
		FailureCount:         c.failureCount,
		ConsecutiveSuccesses: c.consecutiveSuccesses,
	}
	if !c.lastFailure.IsZero() {
		t := c.lastFailure
		s.LastFailure = &t
	}
	return s
}

// transition moves to the given state and notifies the change hook.
// Caller holds mu.
func (c *circuit) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.onChange != nil {
		c.onChange(c.name, from, to)
	}
}

// recoveryTarget is the number of consecutive half-open successes needed
// to close the circuit: ceil(threshold/2).
func recoveryTarget(threshold int) int {
	return (threshold + 1) / 2
}
