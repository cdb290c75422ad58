package api

import (
	"errors"
	"net/http"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/service"
	"github.com/taskloom/taskloom/internal/service/auth"
	"github.com/taskloom/taskloom/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrEmptyBatch),
		errors.Is(err, service.ErrBatchTooLarge),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		isDomainValidationError(err):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for the error.
// Validation errors surface their own text; everything else gets a fixed
// phrase so internal details never reach the response body.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return "Invalid status transition"
	case errors.Is(err, service.ErrEmptyBatch):
		return "Batch cannot be empty"
	case errors.Is(err, service.ErrBatchTooLarge):
		return "Batch exceeds maximum size"
	case isDomainValidationError(err):
		return err.Error()
	default:
		return "An unexpected error occurred"
	}
}

// isDomainValidationError reports whether err is one of the domain's
// field validation errors, whose messages are safe to show clients.
func isDomainValidationError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrEmptyEmail,
		domain.ErrInvalidEmail,
		domain.ErrEmptyPassword,
		domain.ErrPasswordTooShort,
		domain.ErrPasswordTooLong,
		domain.ErrEmptyTaskTitle,
		domain.ErrTaskTitleTooLong,
		domain.ErrInvalidTaskStatus,
		domain.ErrInvalidPriority,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
