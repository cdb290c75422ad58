// Package middleware contains the HTTP middleware applied around the API
// handlers: request tracing, JWT authentication, rate limiting, and
// request metrics.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/taskloom/taskloom/internal/api/shared"
	"github.com/taskloom/taskloom/internal/platform/logger"
)

// Trace attaches a trace ID to every request and puts a trace-scoped
// logger on the context so downstream log lines correlate. Apply it first
// in the chain.
func Trace(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			reqLog := log.With(slog.String("trace_id", traceID))
			ctx = logger.WithContext(ctx, reqLog)

			reqLog.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
