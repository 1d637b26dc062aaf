// Package resilience provides throttle classification and retry/backoff
// helpers shared by the backend clients and the geocode resolver.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ThrottleError wraps an error that signals "rate-limited by backend"
// (HTTP 429, provider-specific quota statuses). The resolver keys its
// backoff and alternate-source fallback on this classification.
type ThrottleError struct {
	Err        error
	StatusCode int
}

func (e *ThrottleError) Error() string {
	return e.Err.Error()
}

func (e *ThrottleError) Unwrap() error {
	return e.Err
}

// NewThrottleError wraps an error as a throttle signal with an optional
// HTTP status code.
func NewThrottleError(err error, statusCode int) *ThrottleError {
	return &ThrottleError{Err: err, StatusCode: statusCode}
}

// IsThrottled returns true if the error (or any error in its chain) is a
// ThrottleError. Each backend client is responsible for wrapping its own
// throttle signal, since backends differ in how they report it.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	var te *ThrottleError
	return errors.As(err, &te)
}

// IsThrottledHTTPStatus returns true for status codes that indicate the
// backend is shedding load.
func IsThrottledHTTPStatus(statusCode int) bool {
	return statusCode == 429 || statusCode == 503
}

// IsTransient returns true if the error looks like a retryable network
// failure (timeouts, connection resets, DNS hiccups) or a throttle signal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsThrottled(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
