package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is returned for missing or malformed required input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a session, student or user does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change on a terminal session.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidStatus is returned when the target status is not a terminal value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNoTemplates is returned when a cohort has no registered face templates.
	ErrNoTemplates = errors.New("no registered face templates for this class")
	// ErrRecognition is returned when the recognition gateway call fails.
	ErrRecognition = errors.New("face recognition failed")
	// ErrStore is returned for unexpected persistent-store failures.
	ErrStore = errors.New("store failure")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("already exists")
	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Validation wraps ErrValidation with a caller message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFound wraps ErrNotFound with the missing thing's name.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// Recognition wraps ErrRecognition with the gateway's message.
func Recognition(err error) error {
	return fmt.Errorf("%w: %v", ErrRecognition, err)
}

// Store wraps ErrStore preserving the underlying cause for logs.
func Store(err error) error {
	return fmt.Errorf("%w: %v", ErrStore, err)
}

// ErrorResponse is the JSON error body returned to callers.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPStatus maps a domain error to the HTTP status and machine code the
// handler layer reports. Internal store details never leak to callers.
func HTTPStatus(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "VALIDATION_FAILED"}
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_STATUS"}
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"}
	case errors.Is(err, ErrNoTemplates):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NO_FACE_TEMPLATES"}
	case errors.Is(err, ErrDuplicate):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "DUPLICATE"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "UNAUTHORIZED"}
	case errors.Is(err, ErrRecognition):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "RECOGNITION_FAILED"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"}
	}
}
