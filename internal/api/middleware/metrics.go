package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveRequest(route, method, status string, seconds float64)
}

// Metrics records request counts and latency per chi route pattern, so
// /tasks/{id} stays one series regardless of the concrete ID.
func Metrics(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			observer.ObserveRequest(route, r.Method, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
		})
	}
}
