// Package client implements the HTTP transport for the sync API: bearer
// authenticated JSON requests, an unauthenticated variant for
// salt/register/login/refresh, and raw PUT/GET against presigned object
// storage URLs.
package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification. Check with
// errors.Is(err, client.ErrSessionExpired).
var (
	ErrSessionExpired = errors.New("client: session expired")
	ErrRateLimited    = errors.New("client: rate limited")
	ErrServer         = errors.New("client: server error")
	ErrNetwork        = errors.New("client: network error")
)

// APIError wraps a sentinel with the HTTP status code and response body,
// for debugging and for callers that want more than errors.Is.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter int // seconds; only meaningful when Err is ErrRateLimited
	Err        error
}

func (e *APIError) Error() string {
	if e.Err == ErrRateLimited {
		return fmt.Sprintf("client: rate limited, retry after %ds", e.RetryAfter)
	}

	return fmt.Sprintf("client: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error:
// 401 -> SessionExpired; 429 -> RateLimited; any other non-2xx -> Server.
// Returns nil for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrSessionExpired
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServer
	}
}
