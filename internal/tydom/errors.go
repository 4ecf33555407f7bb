package tydom

import "errors"

// Domain-specific errors for hub operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a request is issued before the
	// session is established. Mutations in this state are dropped.
	ErrNotConnected = errors.New("tydom: not connected")

	// ErrConnectionFailed is returned when the session cannot be established.
	ErrConnectionFailed = errors.New("tydom: connection failed")

	// ErrTransport is returned when a request cannot be delivered or its
	// response never arrives, including while the circuit breaker is open.
	ErrTransport = errors.New("tydom: transport failure")

	// ErrRequestFailed is returned when the hub answers with a non-2xx status.
	ErrRequestFailed = errors.New("tydom: request failed")

	// ErrMalformedFrame is returned when a frame or its JSON body cannot be parsed.
	ErrMalformedFrame = errors.New("tydom: malformed frame")

	// ErrClosed is returned for operations on a closed client.
	ErrClosed = errors.New("tydom: client closed")
)
