package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/api/shared"
	"github.com/taskloom/taskloom/internal/ratelimit"
)

// RateLimitExceededResponse is the body of a 429 response.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetTime  string `json:"resetTime"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimiter applies a sliding-window policy per client identifier. The
// identifier blends user ID, IP, and user agent, so an authenticated user
// has a budget separate from anonymous traffic on the same address.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	policy  ratelimit.Policy
}

// NewRateLimiter creates rate limiting middleware for one policy. Routes
// needing different budgets get separate instances.
func NewRateLimiter(limiter *ratelimit.Limiter, policy ratelimit.Policy) *RateLimiter {
	return &RateLimiter{limiter: limiter, policy: policy}
}

// Limit enforces the policy. Every response carries the X-RateLimit-*
// headers; a denied request gets 429 with a Retry-After header and a body
// telling the client when to come back.
func (m *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := m.identify(r)
		result := m.limiter.Check(r.Context(), identifier, m.policy)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			retryAfter := result.RetryAfterSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			shared.RespondWithJSON(w, r, http.StatusTooManyRequests, RateLimitExceededResponse{
				Error:      "Rate limit exceeded",
				Limit:      result.Limit,
				Remaining:  result.Remaining,
				ResetTime:  result.ResetTime.UTC().Format(time.RFC3339),
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// identify derives the limiter identifier for the request. Authenticated
// requests use the token's user ID; everything else shares the anonymous
// bucket for its IP and user agent.
func (m *RateLimiter) identify(r *http.Request) string {
	userID := ""
	if id, ok := GetUserID(r); ok {
		userID = id.String()
	}
	return ratelimit.ClientIdentifier(userID, clientIP(r), r.UserAgent())
}

// clientIP returns the originating address: the first entry of
// X-Forwarded-For when a proxy set one, otherwise the connection's remote
// host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
