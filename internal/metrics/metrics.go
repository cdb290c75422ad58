// Package metrics exposes the application's Prometheus collectors and
// the adapters that let the rate limiter, circuit breaker registry, and
// worker pool report into them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskloom/taskloom/internal/breaker"
)

// Registry bundles every collector the application records into. One
// instance is created at startup and shared by injection.
type Registry struct {
	reg *prometheus.Registry

	rateLimitDecisions *prometheus.CounterVec
	rateLimitFailures  *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	workerJobs         *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewRegistry creates a Registry with all collectors registered,
// alongside the standard Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskloom_ratelimit_decisions_total",
			Help: "Rate limiter decisions by key prefix and outcome.",
		}, []string{"prefix", "outcome"}),
		rateLimitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskloom_ratelimit_store_failures_total",
			Help: "Rate limiter store errors that resulted in a fail-open allow.",
		}, []string{"prefix"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskloom_breaker_state",
			Help: "Circuit breaker state per dependency (0=closed, 1=open, 2=half_open).",
		}, []string{"dependency"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskloom_breaker_transitions_total",
			Help: "Circuit breaker state transitions per dependency.",
		}, []string{"dependency", "to"}),
		workerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskloom_worker_jobs_total",
			Help: "Background notification jobs by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskloom_http_requests_total",
			Help: "HTTP requests by route, method, and status class.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskloom_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.rateLimitDecisions,
		r.rateLimitFailures,
		r.breakerState,
		r.breakerTransitions,
		r.workerJobs,
		r.httpRequests,
		r.httpDuration,
	)

	return r
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RateLimit returns an adapter satisfying the limiter's metrics
// interface.
func (r *Registry) RateLimit() *RateLimitMetrics {
	return &RateLimitMetrics{reg: r}
}

// Worker returns an adapter satisfying the worker pool's metrics
// interface.
func (r *Registry) Worker() *WorkerMetrics {
	return &WorkerMetrics{reg: r}
}

// BreakerStateChange returns a hook for the breaker registry that keeps
// the state gauge and transition counter current.
func (r *Registry) BreakerStateChange() breaker.StateChangeFunc {
	return func(dependency string, _, to breaker.State) {
		var v float64
		switch to {
		case breaker.StateOpen:
			v = 1
		case breaker.StateHalfOpen:
			v = 2
		}
		r.breakerState.WithLabelValues(dependency).Set(v)
		r.breakerTransitions.WithLabelValues(dependency, to.String()).Inc()
	}
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(route, method, status string, seconds float64) {
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// RateLimitMetrics implements ratelimit.Metrics.
type RateLimitMetrics struct {
	reg *Registry
}

func (m *RateLimitMetrics) Allowed(prefix string) {
	m.reg.rateLimitDecisions.WithLabelValues(prefix, "allowed").Inc()
}

func (m *RateLimitMetrics) Denied(prefix string) {
	m.reg.rateLimitDecisions.WithLabelValues(prefix, "denied").Inc()
}

func (m *RateLimitMetrics) StoreFailure(prefix string) {
	m.reg.rateLimitFailures.WithLabelValues(prefix).Inc()
}

// WorkerMetrics implements worker.Metrics.
type WorkerMetrics struct {
	reg *Registry
}

func (m *WorkerMetrics) JobFinished(outcome string) {
	m.reg.workerJobs.WithLabelValues(outcome).Inc()
}
