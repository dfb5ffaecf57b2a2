package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth marks bad credentials or an expired session. Callers re-login
	// once before giving up on the operation.
	ErrAuth = errors.New("authentication failed")
	// ErrConnectivity marks transport-level failures (refused, reset,
	// timeout, unresolvable host) after the retry budget is exhausted.
	ErrConnectivity = errors.New("remote host unreachable")
)

// AuthError is raised on a 401 from any call. Receiving one invalidates the
// held session token.
type AuthError struct {
	Operation string
}

func (e *AuthError) Error() string {
	if e.Operation == "" {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// ConnectivityError wraps a transport failure once retries are exhausted.
type ConnectivityError struct {
	Operation string
	Err       error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

// APIError is an unexpected HTTP status from the remote host.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: http %d", e.Operation, e.StatusCode)
}

// Transient reports whether the status is worth retrying: 5xx and 429 only.
// Authentication failures and other 4xx are surfaced immediately.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		(e.StatusCode >= 500 && e.StatusCode <= 599)
}
