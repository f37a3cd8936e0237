package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response body shape shared by every endpoint.
type Envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes a failed envelope.
func Fail(w http.ResponseWriter, status int, message string, fields map[string][]string) {
	JSON(w, status, Envelope{Success: false, Message: message, Errors: fields})
}

// NoContent writes a successful envelope without data.
func NoContent(w http.ResponseWriter, message string) {
	OK(w, http.StatusOK, nil, message)
}
