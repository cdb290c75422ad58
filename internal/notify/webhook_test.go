package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/notify"
)

func testEvent(t *testing.T) *events.Event {
	t.Helper()
	event, err := events.New(events.TypeTaskDueSoon, events.TaskDueSoonPayload{
		TaskID: uuid.New(),
		UserID: uuid.New(),
		Title:  "pay invoice",
		DueAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return event
}

func TestNotifyDeliversEvent(t *testing.T) {
	t.Parallel()

	var got events.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(events.TypeTaskDueSoon), r.Header.Get("X-Taskloom-Event"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := breaker.NewRegistry(breaker.DefaultOptions())
	notifier := notify.NewWebhookNotifier(srv.URL, registry, srv.Client())

	event := testEvent(t)
	require.NoError(t, notifier.Notify(context.Background(), event))
	assert.Equal(t, event.ID, got.ID)
}

func TestNotifyTreatsNon2xxAsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	registry := breaker.NewRegistry(breaker.DefaultOptions())
	notifier := notify.NewWebhookNotifier(srv.URL, registry, srv.Client())

	err := notifier.Notify(context.Background(), testEvent(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, breaker.ErrOpen)
	assert.Contains(t, err.Error(), "502")
}

func TestNotifyOpensCircuitAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	registry := breaker.NewRegistry(breaker.Options{FailureThreshold: 3, RecoveryTimeout: time.Hour})
	notifier := notify.NewWebhookNotifier(srv.URL, registry, srv.Client())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := notifier.Notify(ctx, testEvent(t))
		require.Error(t, err)
		require.NotErrorIs(t, err, breaker.ErrOpen)
	}
	require.Equal(t, int32(3), hits.Load())

	// Circuit is open now: delivery is rejected locally, the endpoint is
	// not contacted again.
	err := notifier.Notify(ctx, testEvent(t))
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, int32(3), hits.Load())

	st := registry.Status()[notify.DependencyName]
	assert.Equal(t, breaker.StateOpen, st.State)
}
