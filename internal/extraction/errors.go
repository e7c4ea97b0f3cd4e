package extraction

import "errors"

// Domain errors for the extraction package.
var (
	// ErrUnknownGroup is returned when a pass requests a group the schema
	// does not define.
	ErrUnknownGroup = errors.New("extraction: unknown group")

	// ErrNoDevice is returned when Extract is called with a nil device.
	ErrNoDevice = errors.New("extraction: no device")
)
