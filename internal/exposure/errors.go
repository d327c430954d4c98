package exposure

import "errors"

// Domain errors for the exposure package.
var (
	// ErrNilDevice is returned when Add or Remove is given a nil device.
	ErrNilDevice = errors.New("exposure: nil device")

	// ErrAlreadyExposed is returned when a device is added twice.
	ErrAlreadyExposed = errors.New("exposure: device already exposed")

	// ErrDuplicateSerial is returned when a serial number is already used by
	// another exposed device.
	ErrDuplicateSerial = errors.New("exposure: serial number in use")

	// ErrNotExposed is returned when removing a device that was never added.
	ErrNotExposed = errors.New("exposure: device not exposed")

	// ErrUnknownSerial is returned for a set message addressed to no device.
	ErrUnknownSerial = errors.New("exposure: unknown serial number")

	// ErrInvalidCommand is returned for a set message that cannot be decoded.
	ErrInvalidCommand = errors.New("exposure: invalid command")
)
