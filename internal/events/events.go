// Package events defines the in-process events that decouple the service
// layer from the background workers reacting to them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/domain"
)

// Type identifies what happened.
type Type string

// Event types emitted by the application.
const (
	// TypeTaskStatusChanged fires when a task moves between statuses.
	TypeTaskStatusChanged Type = "task.status_changed"

	// TypeTaskDueSoon fires when the reminder scheduler finds a task
	// approaching its due date.
	TypeTaskDueSoon Type = "task.due_soon"
)

// Event is a single occurrence with a JSON payload. Handlers decode the
// payload according to Type.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New creates an Event of the given type with the payload serialized to
// JSON.
func New(eventType Type, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// TaskStatusChangedPayload is the payload for TypeTaskStatusChanged.
type TaskStatusChangedPayload struct {
	TaskID    uuid.UUID         `json:"task_id"`
	UserID    uuid.UUID         `json:"user_id"`
	From      domain.TaskStatus `json:"from"`
	To        domain.TaskStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// TaskDueSoonPayload is the payload for TypeTaskDueSoon.
type TaskDueSoonPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
	Title  string    `json:"title"`
	DueAt  time.Time `json:"due_at"`
}

// Handler processes events. Implementations must tolerate redelivery of
// the same event.
type Handler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// Emitter publishes events to registered handlers without the publisher
// knowing who consumes them.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}
