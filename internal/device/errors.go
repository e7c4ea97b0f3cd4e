package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownField) {
//	    // key is not part of the schema
//	}
var (
	// ErrUnknownField is returned when a field key is not in the schema.
	ErrUnknownField = errors.New("device: unknown field")

	// ErrInvalidSchema is returned when a schema's keys and presentation disagree.
	ErrInvalidSchema = errors.New("device: invalid schema")

	// ErrDeviceNotFound is returned when a serial is not known.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrSnapshotNotFound is returned when a device has no stored snapshot.
	ErrSnapshotNotFound = errors.New("device: snapshot not found")
)
