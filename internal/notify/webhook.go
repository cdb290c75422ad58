// Package notify delivers application events to external consumers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/events"
)

// DependencyName is the circuit breaker dependency name for the webhook
// endpoint.
const DependencyName = "webhook"

// WebhookNotifier POSTs event payloads to a configured URL. Deliveries run
// under the circuit breaker: when the endpoint keeps failing, the circuit
// opens and deliveries are rejected locally instead of piling onto a dead
// endpoint.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	breakers *breaker.Registry
}

// NewWebhookNotifier creates a notifier for the given URL. A nil client
// falls back to one with a 10s timeout; the breaker only reacts after a
// delivery settles, so the client timeout is what bounds latency.
func NewWebhookNotifier(url string, breakers *breaker.Registry, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		url:      url,
		client:   client,
		breakers: breakers,
	}
}

// Notify delivers the event. It returns breaker.ErrOpen (as *OpenError)
// without attempting delivery while the circuit is open; any other error
// is the delivery failure itself.
func (n *WebhookNotifier) Notify(ctx context.Context, event *events.Event) error {
	return n.breakers.Do(ctx, DependencyName, func(ctx context.Context) error {
		return n.deliver(ctx, event)
	})
}

// deliver performs one HTTP POST of the event.
func (n *WebhookNotifier) deliver(ctx context.Context, event *events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskloom-Event", string(event.Type))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
