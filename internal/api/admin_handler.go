package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskloom/taskloom/internal/api/shared"
	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/ratelimit"
)

// AdminHandler exposes the operator endpoints for inspecting and
// resetting the circuit breakers and clearing rate limit state. These
// routes sit behind authentication like the rest of the API.
type AdminHandler struct {
	breakers *breaker.Registry
	limiter  *ratelimit.Limiter
	policies map[string]ratelimit.Policy
}

// NewAdminHandler creates an AdminHandler. policies maps the names
// accepted by the reset endpoint to their limiter policies.
func NewAdminHandler(breakers *breaker.Registry, limiter *ratelimit.Limiter, policies map[string]ratelimit.Policy) *AdminHandler {
	return &AdminHandler{
		breakers: breakers,
		limiter:  limiter,
		policies: policies,
	}
}

// BreakerStatusResponse is the body of the breaker status endpoint.
type BreakerStatusResponse struct {
	Breakers map[string]breaker.Status `json:"breakers"`
}

// BreakerStatus handles GET /admin/breakers.
func (h *AdminHandler) BreakerStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, BreakerStatusResponse{
		Breakers: h.breakers.Status(),
	})
}

// BreakerReset handles POST /admin/breakers/{name}/reset. Resetting a
// dependency that has no circuit yet is a no-op, not an error.
func (h *AdminHandler) BreakerReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Dependency name required")
		return
	}

	h.breakers.Reset(name)
	w.WriteHeader(http.StatusNoContent)
}

// RateLimitReset handles POST /admin/ratelimit/{policy}/{identifier}/reset,
// clearing the identifier's window under the named policy.
func (h *AdminHandler) RateLimitReset(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.policies[chi.URLParam(r, "policy")]
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown rate limit policy")
		return
	}

	identifier := chi.URLParam(r, "identifier")
	if identifier == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Identifier required")
		return
	}

	if err := h.limiter.Reset(r.Context(), identifier, policy); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to reset rate limit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
