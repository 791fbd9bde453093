package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	ErrAuthorization = errors.New("authorization error")
	ErrRequest       = errors.New("request error")
	ErrTransport     = errors.New("transport error")

	// ErrNoAuthorizer is wrapped by AuthorizationError when an operation
	// requires authorization but no resolver is configured.
	ErrNoAuthorizer = errors.New("no authorization resolver configured")

	// ErrMissingParameter is wrapped by RequestError when a required
	// parameter is absent from the call input.
	ErrMissingParameter = errors.New("missing required parameter")

	errNilCredential = errors.New("resolver returned no credential")
)

// AuthorizationError reports a failed credential resolution. No request was
// sent when this error is returned.
type AuthorizationError struct {
	OperationID string
	SchemeID    string
	Err         error
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("%s: authorization for scheme %q failed", e.OperationID, e.SchemeID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }

// RequestError reports a non-success response, or a request that could not be
// built from the call input (Status is 0 in that case).
type RequestError struct {
	OperationID string
	Status      int
	// Body is the parsed error payload: decoded JSON when the response
	// carried JSON, the raw text otherwise.
	Body any
	Err  error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		msg := e.OperationID + ": invalid request"
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
	return fmt.Sprintf("%s: unexpected status %d", e.OperationID, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequest }

// TransportError reports that no response was obtained.
type TransportError struct {
	OperationID string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.OperationID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
