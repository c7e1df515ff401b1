package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Terminal errors returned by the engine.
var (
	// ErrAttemptsExhausted is returned when every attempt across the
	// available routes failed.
	ErrAttemptsExhausted = errors.New("all fetch attempts exhausted")

	// ErrRoutesCoolingDown is returned when no route became eligible within
	// the bounded wait.
	ErrRoutesCoolingDown = errors.New("all routes cooling down")
)

// FailureKind classifies a failed fetch attempt.
type FailureKind string

const (
	// KindTimeout covers deadline and timeout failures.
	KindTimeout FailureKind = "timeout"

	// KindConnection covers DNS, TCP and TLS failures.
	KindConnection FailureKind = "connection"

	// KindHTTPStatus covers non-2xx responses.
	KindHTTPStatus FailureKind = "http_status"

	// KindOther covers everything else.
	KindOther FailureKind = "other"
)

// FetchError describes one failed fetch attempt with enough context for the
// caller to decide whether a missing page is fatal to the run.
type FetchError struct {
	Kind       FailureKind
	URL        string
	Route      string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s via %s: %s (status %d)", e.URL, e.Route, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s via %s: %s: %v", e.URL, e.Route, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify maps a transport error or HTTP status to a failure kind.
func classify(statusCode int, err error) FailureKind {
	if err == nil {
		if statusCode < 200 || statusCode >= 300 {
			return KindHTTPStatus
		}
		return ""
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return KindConnection
	}

	return KindOther
}
