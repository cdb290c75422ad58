package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the standard error body. The raw internal error never
// appears here; handlers log it and send only the safe message.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes data as a JSON response with the given status.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}

// RespondWithError writes a JSON error body carrying the request's trace
// ID so clients can quote it when reporting problems.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}

// RespondWithErrorAndLog writes a sanitized error response and logs the
// underlying error with the trace ID. 5xx errors log at error level, 4xx
// at debug.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	attrs := []any{
		slog.String("trace_id", GetTraceID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	if status >= 500 {
		slog.Error(userMessage, attrs...)
	} else {
		slog.Debug(userMessage, attrs...)
	}

	RespondWithError(w, r, status, userMessage)
}
