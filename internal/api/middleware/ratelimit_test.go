package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/ratelimit"
)

func newTestRateLimiter(limit int, window time.Duration) *RateLimiter {
	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())
	return NewRateLimiter(limiter, ratelimit.Policy{
		Limit:     limit,
		Window:    window,
		KeyPrefix: "test:",
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, ip, agent string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	req.Header.Set("User-Agent", agent)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterSetsHeadersOnAllowedRequests(t *testing.T) {
	handler := newTestRateLimiter(5, time.Minute).Limit(okHandler())

	rec := doRequest(t, handler, "10.0.0.1", "curl/8.0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	handler := newTestRateLimiter(2, time.Minute).Limit(okHandler())

	doRequest(t, handler, "10.0.0.1", "curl/8.0")
	doRequest(t, handler, "10.0.0.1", "curl/8.0")
	rec := doRequest(t, handler, "10.0.0.1", "curl/8.0")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body RateLimitExceededResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Limit)
	assert.Zero(t, body.Remaining)
	assert.Positive(t, body.RetryAfter)

	reset, err := time.Parse(time.RFC3339, body.ResetTime)
	require.NoError(t, err)
	assert.True(t, reset.After(time.Now().Add(-time.Second)))
}

func TestRateLimiterDeniedRequestsConsumeBudget(t *testing.T) {
	handler := newTestRateLimiter(1, time.Minute).Limit(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, handler, "10.0.0.1", "curl/8.0").Code)

	// Each rejected retry keeps the window full, so hammering the
	// endpoint never sneaks a request through.
	for i := 0; i < 3; i++ {
		rec := doRequest(t, handler, "10.0.0.1", "curl/8.0")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	handler := newTestRateLimiter(1, time.Minute).Limit(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, handler, "10.0.0.1", "curl/8.0").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, handler, "10.0.0.1", "curl/8.0").Code)

	// Different IP, fresh budget.
	assert.Equal(t, http.StatusOK, doRequest(t, handler, "10.0.0.2", "curl/8.0").Code)
	// Same IP but different user agent also counts separately.
	assert.Equal(t, http.StatusOK, doRequest(t, handler, "10.0.0.1", "wget/1.21").Code)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"

	assert.Equal(t, "192.0.2.10", clientIP(req))
}
