package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEmitter dispatches events synchronously to registered handlers.
type InMemoryEmitter struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewInMemoryEmitter creates an emitter with no handlers registered.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	return &InMemoryEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

var _ Emitter = (*InMemoryEmitter)(nil)

// RegisterHandler adds a handler to receive all subsequent events.
func (e *InMemoryEmitter) RegisterHandler(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// Emit implements Emitter. Every handler sees the event even when an
// earlier one fails; the first error is returned.
func (e *InMemoryEmitter) Emit(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)))
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("event handler failed",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", string(event.Type)),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
