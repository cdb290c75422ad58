package events_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/events"
)

type recordingHandler struct {
	seen []*events.Event
	err  error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	h.seen = append(h.seen, event)
	return h.err
}

func TestEventPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	payload := events.TaskStatusChangedPayload{
		TaskID:    uuid.New(),
		UserID:    uuid.New(),
		From:      domain.TaskStatusTodo,
		To:        domain.TaskStatusDone,
		ChangedAt: time.Now().UTC().Truncate(time.Second),
	}

	event, err := events.New(events.TypeTaskStatusChanged, payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, events.TypeTaskStatusChanged, event.Type)

	var got events.TaskStatusChangedPayload
	require.NoError(t, event.UnmarshalPayload(&got))
	assert.Equal(t, payload, got)
}

func TestEmitterDeliversToAllHandlers(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryEmitter(slog.Default())
	failing := &recordingHandler{err: errors.New("handler down")}
	healthy := &recordingHandler{}
	emitter.RegisterHandler(failing)
	emitter.RegisterHandler(healthy)

	event, err := events.New(events.TypeTaskDueSoon, events.TaskDueSoonPayload{TaskID: uuid.New()})
	require.NoError(t, err)

	err = emitter.Emit(context.Background(), event)
	assert.Error(t, err, "first handler error is surfaced")

	// The failing handler did not stop delivery to the second.
	assert.Len(t, failing.seen, 1)
	assert.Len(t, healthy.seen, 1)
}

func TestEmitterWithoutHandlers(t *testing.T) {
	t.Parallel()

	emitter := events.NewInMemoryEmitter(slog.Default())
	event, err := events.New(events.TypeTaskDueSoon, events.TaskDueSoonPayload{})
	require.NoError(t, err)

	assert.NoError(t, emitter.Emit(context.Background(), event))
}
