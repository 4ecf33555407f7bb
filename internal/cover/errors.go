package cover

import "errors"

// Domain errors for the cover package.
//
//	if errors.Is(err, cover.ErrUnknownDevice) {
//	    // skip this item
//	}
var (
	// ErrUnknownDevice is returned when a device id or cover name is not
	// in the registry.
	ErrUnknownDevice = errors.New("cover: unknown device")

	// ErrConfiguration is returned when the registry cannot be built
	// because the mapping is not a bijection.
	ErrConfiguration = errors.New("cover: invalid configuration")
)
