// Package worker runs the background side of the application: a pool of
// goroutines delivering event notifications and a cron-driven scheduler
// that turns approaching due dates into reminder events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/events"
)

// Job delivery outcomes reported to metrics.
const (
	OutcomeDelivered   = "delivered"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeQueueFull   = "queue_full"
)

// Notifier delivers one event to the outside world.
type Notifier interface {
	Notify(ctx context.Context, event *events.Event) error
}

// Metrics receives job outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	JobFinished(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) JobFinished(string) {}

// PoolConfig holds worker pool settings.
type PoolConfig struct {
	// Workers is how many goroutines consume the queue.
	Workers int

	// QueueSize is the buffered queue capacity. A full queue drops new
	// jobs rather than blocking request handlers.
	QueueSize int
}

// Pool consumes queued events and hands them to the notifier. It
// implements events.Handler so it can be registered directly on the
// emitter.
type Pool struct {
	notifier Notifier
	metrics  Metrics
	logger   *slog.Logger
	cfg      PoolConfig

	jobs   chan *events.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a Pool. A nil metrics sink is replaced with a no-op.
func NewPool(cfg PoolConfig, notifier Notifier, metrics Metrics, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With("component", "worker_pool"),
		cfg:      cfg,
		jobs:     make(chan *events.Event, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_size", p.cfg.QueueSize))
}

// Stop drains the queue and waits for in-flight jobs to finish. No new
// jobs are accepted once Stop has begun.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped || !p.started {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	p.logger.Info("worker pool stopped")
}

// HandleEvent implements events.Handler by enqueueing the event for
// asynchronous delivery.
func (p *Pool) HandleEvent(ctx context.Context, event *events.Event) error {
	return p.Enqueue(event)
}

// Enqueue adds an event to the queue without blocking. A full queue or a
// stopped pool drops the job with an error.
func (p *Pool) Enqueue(event *events.Event) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return errors.New("worker pool is stopped")
	}
	defer p.mu.Unlock()

	select {
	case p.jobs <- event:
		return nil
	default:
		p.metrics.JobFinished(OutcomeQueueFull)
		return fmt.Errorf("worker queue full, dropping event %s", event.ID)
	}
}

// worker consumes jobs until the queue is closed and drained.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With(slog.Int("worker", id))

	for event := range p.jobs {
		p.process(log, event)
	}
}

// process delivers one event and records the outcome. An open circuit is
// an expected operational condition, logged at warn and counted
// separately from delivery failures.
func (p *Pool) process(log *slog.Logger, event *events.Event) {
	err := p.notifier.Notify(p.ctx, event)
	switch {
	case err == nil:
		p.metrics.JobFinished(OutcomeDelivered)
		log.Debug("event delivered",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)))
	case errors.Is(err, breaker.ErrOpen):
		p.metrics.JobFinished(OutcomeCircuitOpen)
		log.Warn("notification dropped, circuit open",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)))
	default:
		p.metrics.JobFinished(OutcomeFailed)
		log.Error("event delivery failed",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}
