package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PathID returns the named URL parameter when it is a well formed UUID.
// Malformed identifiers cannot name a stored record and are reported as
// not found.
func PathID(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", name, raw, ErrNotFound)
	}
	return id.String(), nil
}

// QueryID returns an optional UUID query parameter. An empty value yields "".
func QueryID(r *http.Request, name string) (string, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", NewValidationError(name, fmt.Sprintf("The %s must be a valid identifier.", name))
	}
	return id.String(), nil
}
