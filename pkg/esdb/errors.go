package esdb

import (
	"errors"
	"fmt"
)

// Error is satisfied by every error kind this package raises. Callers can
// use errors.As against one of the concrete types below, or check this
// interface to distinguish "our" error kinds from an arbitrary error
// surfacing out of a consumer callback.
type Error interface {
	error
	esdbError()
}

type (
	// ClientError is the base carried by every concrete kind below.
	ClientError struct {
		Op  string
		Err error
	}

	// TransportError covers connection failure, DNS failure, timeouts,
	// framing errors, and an observe stream that terminated normally
	// (always treated as abnormal).
	TransportError struct {
		ClientError
	}

	// InterruptedError is raised when ctx is cancelled mid-operation.
	InterruptedError struct {
		ClientError
	}

	// MarshallingError is a JSON parse or type-conversion failure. For
	// streaming query results this is per-row and does not terminate the
	// stream; for single-response endpoints it is fatal.
	MarshallingError struct {
		ClientError
	}

	// InvalidUsageError flags illegal option combinations (conflicting
	// bounds, Order on an observe call, and so on).
	InvalidUsageError struct {
		ClientError
		Field string
		Value string
	}

	// HTTPClientError wraps a 4xx response.
	HTTPClientError struct {
		ClientError
		StatusCode int
		Body       string
	}

	// HTTPServerError wraps a 5xx response.
	HTTPServerError struct {
		ClientError
		StatusCode int
		Body       string
	}

	// HTTPUnexpectedStatusError wraps any other non-200 status.
	HTTPUnexpectedStatusError struct {
		ClientError
		StatusCode int
		Body       string
	}

	// ConflictError reports an HTTP 409 response: a write's preconditions
	// were violated. It is its own type, not an HTTPClientError, so
	// AsHTTPClientError does not match it; use IsConflict.
	ConflictError struct {
		ClientError
		Body string
	}
)

func (e ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e ClientError) Unwrap() error { return e.Err }

func (TransportError) esdbError()           {}
func (InterruptedError) esdbError()         {}
func (MarshallingError) esdbError()         {}
func (InvalidUsageError) esdbError()        {}
func (HTTPClientError) esdbError()          {}
func (HTTPServerError) esdbError()          {}
func (HTTPUnexpectedStatusError) esdbError() {}
func (ConflictError) esdbError()            {}

// IsConflict reports whether err is a write-precondition conflict (HTTP 409).
func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

// IsInterrupted reports whether err stems from caller-initiated cancellation.
func IsInterrupted(err error) bool {
	var interruptedErr *InterruptedError
	return errors.As(err, &interruptedErr)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// AsHTTPClientError extracts an HTTPClientError from the error chain.
func AsHTTPClientError(err error) (*HTTPClientError, bool) {
	var httpErr *HTTPClientError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// wrapConsumerError implements the consumer-error propagation policy: a
// typed Error from the consumer propagates verbatim, anything else is
// wrapped as a TransportError with the original as cause.
func wrapConsumerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var esdbErr Error
	if errors.As(err, &esdbErr) {
		return err
	}
	return &TransportError{ClientError{Op: op, Err: err}}
}
