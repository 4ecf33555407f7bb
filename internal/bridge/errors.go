package bridge

import "errors"

// Domain-specific errors for bridge operations.
var (
	// ErrMissingDependency is returned by NewBridge when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("bridge: missing dependency")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrPositionUnavailable is returned when the hub reports no position
	// for a cover.
	ErrPositionUnavailable = errors.New("bridge: position unavailable")
)
