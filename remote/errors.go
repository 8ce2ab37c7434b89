package remote

import (
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a service failure for retry decisions.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server"
	KindNetwork     ErrorKind = "network"
)

// Error is a failed call against the rendering service.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("vidscribe: remote %s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vidscribe: remote %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient. Auth and
// validation failures are permanent; rate limits, server errors, and
// network faults are worth retrying.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindNetwork:
		return true
	}
	return false
}

// IsRetryable reports whether err is a transient remote failure.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 404:
		return KindNotFound
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindServer
	default:
		return KindValidation
	}
}
