// ABOUTME: Uniform JSON response envelope for the HTTP API
// ABOUTME: Maps upstream error taxonomy onto HTTP status codes
package web

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/harperreed/fieldwatch/upstream"
)

// envelope is the uniform response shape: {success, data|error}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}

// writeUpstreamError picks the status code from the upstream error taxonomy.
func writeUpstreamError(w http.ResponseWriter, err error) {
	writeError(w, upstreamStatus(err), err)
}

func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, upstream.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, upstream.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, upstream.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, upstream.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upstream.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, upstream.ErrUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
