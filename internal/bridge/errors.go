package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrUnknownConverter is returned when a configured converter name has no variant.
	ErrUnknownConverter = errors.New("bridge: unknown converter")

	// ErrDuplicateConverter is returned when a converter is listed twice.
	ErrDuplicateConverter = errors.New("bridge: duplicate converter")

	// ErrMissingCapability is returned when a binder is attached to a device
	// without the capability it drives.
	ErrMissingCapability = errors.New("bridge: device lacks capability")

	// ErrPanic wraps a panic recovered from a converter, binder or update.
	ErrPanic = errors.New("bridge: recovered panic")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bridge: registry already started")
)
