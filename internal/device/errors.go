package device

import "errors"

// Domain errors for the device package.
var (
	// ErrUnsupported is returned when a command targets a capability the
	// device does not have.
	ErrUnsupported = errors.New("device: capability not supported")

	// ErrOutOfRange is returned when a command value is outside the
	// capability's valid range.
	ErrOutOfRange = errors.New("device: value out of range")

	// ErrEmptyCommand is returned when a command sets nothing.
	ErrEmptyCommand = errors.New("device: empty command")

	// ErrInvalidMetadata is returned when display metadata breaks a protocol limit.
	ErrInvalidMetadata = errors.New("device: invalid metadata")
)
