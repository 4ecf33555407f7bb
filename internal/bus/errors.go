package bus

import "errors"

// Domain-specific errors for bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConfiguration is returned when topic patterns are unusable or
	// ambiguous. The process must refuse to start.
	ErrConfiguration = errors.New("bus: invalid topic configuration")

	// ErrMalformedPayload is returned when a position-set payload is not
	// a decimal integer.
	ErrMalformedPayload = errors.New("bus: malformed payload")

	// ErrPublish is returned when a publication fails.
	ErrPublish = errors.New("bus: publish failed")
)
