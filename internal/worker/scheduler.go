package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/store"
)

// SchedulerConfig holds reminder scan settings.
type SchedulerConfig struct {
	// Schedule is a cron expression controlling how often the due-date
	// scan runs.
	Schedule string

	// Lookahead is how far ahead of now the scan looks for due tasks.
	Lookahead time.Duration
}

// Scheduler periodically scans for tasks whose due date falls inside the
// lookahead window and emits a reminder event for each. Each scan covers
// the half-open interval [last scan horizon, now+lookahead) so a task is
// announced at most once per process lifetime.
type Scheduler struct {
	tasks   store.TaskStore
	emitter events.Emitter
	logger  *slog.Logger
	cfg     SchedulerConfig

	cron *cron.Cron
	now  func() time.Time

	mu       sync.Mutex
	nextFrom time.Time
}

// NewScheduler creates a Scheduler. It does not start scanning until
// Start is called.
func NewScheduler(cfg SchedulerConfig, tasks store.TaskStore, emitter events.Emitter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:   tasks,
		emitter: emitter,
		logger:  logger.With("component", "reminder_scheduler"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start registers the scan on a cron runner and begins executing it.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.nextFrom = s.now().UTC()
	s.mu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Scan(ctx); err != nil {
			s.logger.Error("reminder scan failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("reminder scheduler started",
		slog.String("schedule", s.cfg.Schedule),
		slog.Duration("lookahead", s.cfg.Lookahead))
	return nil
}

// Stop halts the cron runner and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("reminder scheduler stopped")
}

// Scan emits a reminder for every open task due inside the current
// window, then advances the window so the next scan starts where this
// one ended.
func (s *Scheduler) Scan(ctx context.Context) error {
	s.mu.Lock()
	from := s.nextFrom
	to := s.now().UTC().Add(s.cfg.Lookahead)
	s.mu.Unlock()

	if !to.After(from) {
		return nil
	}

	tasks, err := s.tasks.ListDueBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("listing due tasks: %w", err)
	}

	for _, task := range tasks {
		event, err := events.New(events.TypeTaskDueSoon, events.TaskDueSoonPayload{
			TaskID: task.ID,
			UserID: task.UserID,
			Title:  task.Title,
			DueAt:  *task.DueDate,
		})
		if err != nil {
			s.logger.Error("building due-soon event",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.emitter.Emit(ctx, event); err != nil {
			s.logger.Error("emitting due-soon event",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.nextFrom = to
	s.mu.Unlock()

	if len(tasks) > 0 {
		s.logger.Info("reminder scan complete",
			slog.Int("reminders", len(tasks)),
			slog.Time("window_from", from),
			slog.Time("window_to", to))
	}
	return nil
}
