// ABOUTME: Error taxonomy for the upstream job-tracking API
// ABOUTME: Maps transport status codes onto sentinel errors matchable with errors.Is
package upstream

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors classifying upstream failures. Wrapped errors returned by
// the client are marked with exactly one of these; callers match with
// errors.Is.
var (
	ErrBadRequest   = errors.New("upstream: bad request")
	ErrUnauthorized = errors.New("upstream: unauthorized")
	ErrForbidden    = errors.New("upstream: forbidden")
	ErrNotFound     = errors.New("upstream: not found")
	ErrRateLimited  = errors.New("upstream: rate limited")
	ErrServer       = errors.New("upstream: server error")
	ErrUnreachable  = errors.New("upstream: network unreachable")
)

// classifyStatus maps an HTTP status code to the taxonomy sentinel.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrServer
	default:
		return ErrBadRequest
	}
}
