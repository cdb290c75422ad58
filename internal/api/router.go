package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/taskloom/taskloom/internal/api/middleware"
	"github.com/taskloom/taskloom/internal/ratelimit"
)

// RouterDeps carries everything the router needs. Non-nil fields are
// wired; leaving RateLimiter or Metrics nil disables that middleware,
// which tests use to exercise handlers in isolation.
type RouterDeps struct {
	Logger      *slog.Logger
	Auth        *AuthHandler
	Tasks       *TaskHandler
	Admin       *AdminHandler
	AuthGuard   *middleware.AuthMiddleware
	APILimiter  *middleware.RateLimiter
	AuthLimiter *middleware.RateLimiter
	Metrics     middleware.RequestObserver
	MetricsPage http.Handler
	ReadyCheck  func(r *http.Request) error
}

// NewRouter assembles the application's HTTP routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Trace(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints are public but carry the tighter auth budget:
		// brute-forcing logins burns it fast, and failures count too.
		r.Group(func(r chi.Router) {
			if deps.AuthLimiter != nil {
				r.Use(deps.AuthLimiter.Limit)
			}
			r.Post("/auth/register", deps.Auth.Register)
			r.Post("/auth/login", deps.Auth.Login)
			r.Post("/auth/refresh", deps.Auth.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthGuard.Authenticate)
			if deps.APILimiter != nil {
				r.Use(deps.APILimiter.Limit)
			}

			r.Post("/tasks", deps.Tasks.Create)
			r.Get("/tasks", deps.Tasks.List)
			r.Post("/tasks/batch", deps.Tasks.BatchCreate)
			r.Post("/tasks/batch/status", deps.Tasks.BatchUpdateStatus)
			r.Get("/tasks/{id}", deps.Tasks.Get)
			r.Put("/tasks/{id}", deps.Tasks.Update)
			r.Delete("/tasks/{id}", deps.Tasks.Delete)

			if deps.Admin != nil {
				r.Get("/admin/breakers", deps.Admin.BreakerStatus)
				r.Post("/admin/breakers/{name}/reset", deps.Admin.BreakerReset)
				r.Post("/admin/ratelimit/{policy}/{identifier}/reset", deps.Admin.RateLimitReset)
			}
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if deps.ReadyCheck != nil {
			if err := deps.ReadyCheck(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})
	if deps.MetricsPage != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsPage)
	}

	return r
}

// RateLimitPolicies returns the named policies served by the admin reset
// endpoint for the given limits.
func RateLimitPolicies(api, auth ratelimit.Policy) map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		"api":  api,
		"auth": auth,
	}
}
