package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ResponseError is a non-2xx reply, or a 2xx reply whose envelope could not
// be decoded.
type ResponseError struct {
	StatusCode int
	Message    string // provider-supplied detail, may be empty
}

func (e *ResponseError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "invalid credentials"
	case http.StatusForbidden:
		return "insufficient permission"
	}
	return fmt.Sprintf("provider error (%d): %s", e.StatusCode, e.Message)
}

// IsAuth reports whether the error is a 401 or 403.
func (e *ResponseError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// TimeoutError means the per-call deadline fired before a reply arrived.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.Endpoint, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed. Authorization
// failures are permanent; other provider, timeout and transport errors are
// transient.
func Retryable(err error) bool {
	var re *ResponseError
	if errors.As(err, &re) {
		return !re.IsAuth()
	}
	var te *TimeoutError
	var tr *TransportError
	return errors.As(err, &te) || errors.As(err, &tr)
}
