// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrBadRequest   = errors.New("bad request")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError carries field-level messages for a 422 response.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

// Add appends a message for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no messages were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Err returns e as an error, or nil when empty.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to enveloped HTTP responses.
// Internal errors are logged and reported without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		Fail(w, status, "The given data was invalid.", verr.Fields)
	case status == http.StatusInternalServerError:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Fail(w, status, http.StatusText(status), nil)
	default:
		Fail(w, status, err.Error(), nil)
	}
}
