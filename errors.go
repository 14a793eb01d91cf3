package gerbang

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error type labels carried by FetchError.Type.
const (
	ErrorTypeTransport           = "Transport"
	ErrorTypeServer              = "Server"
	ErrorTypeUpstreamRateLimited = "UpstreamRateLimited"
	ErrorTypeClient              = "Client"
	ErrorTypeCircuitOpen         = "CircuitOpen"
	ErrorTypeCanceled            = "Canceled"
	ErrorTypeRetriesExhausted    = "RetriesExhausted"
	ErrorTypeValidation          = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the breaker fails a fetch fast.
	ErrCircuitOpen = errors.New("gerbang: circuit open")

	// ErrUpstreamRateLimited is returned when the upstream itself rejected
	// the call with a throttling response.
	ErrUpstreamRateLimited = errors.New("gerbang: upstream rate limited")

	// ErrRetriesExhausted is returned when the attempt budget ran out on a
	// transient failure.
	ErrRetriesExhausted = errors.New("gerbang: retries exhausted")

	// ErrCanceled is returned when the caller abandoned the fetch.
	ErrCanceled = errors.New("gerbang: fetch canceled")
)

// FetchError is the classified failure of a fetch. Every failed fetch
// resolves to exactly one of these; a zero Response never stands in for an
// error.
type FetchError struct {
	Type        string
	Message     string
	Cause       error
	Key         string
	Endpoint    string
	FetchID     string
	Attempt     int
	MaxRetries  int
	StatusCode  int
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.FetchID != "" {
		msg = fmt.Sprintf("[%s] %s", e.FetchID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is maps sentinel errors onto error types so callers can use errors.Is
// without reaching for the concrete type.
func (e *FetchError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrUpstreamRateLimited:
		return e.Type == ErrorTypeUpstreamRateLimited
	case ErrRetriesExhausted:
		return e.Type == ErrorTypeRetriesExhausted
	case ErrCanceled:
		return e.Type == ErrorTypeCanceled
	}
	if targetErr, ok := target.(*FetchError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a failure that might
// succeed on retry: transport faults, 5xx responses and upstream throttling.
// Client errors, circuit-open fast failures and cancellation are not
// transient from the caller's point of view.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Type {
		case ErrorTypeTransport, ErrorTypeServer, ErrorTypeUpstreamRateLimited, ErrorTypeRetriesExhausted:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Bare transport errors from a PerformFunc that does not classify.
	return true
}
