package homeassistant

import "errors"

// Domain-specific errors for the Home Assistant transport.
var (
	// ErrNotConnected is returned when a request is made without a live connection.
	ErrNotConnected = errors.New("homeassistant: not connected")

	// ErrAuthFailed is returned when Home Assistant rejects the access token.
	ErrAuthFailed = errors.New("homeassistant: authentication failed")

	// ErrUnexpectedMessage is returned when the handshake receives an unknown message type.
	ErrUnexpectedMessage = errors.New("homeassistant: unexpected message")

	// ErrCallFailed is returned when Home Assistant answers a request with success=false.
	ErrCallFailed = errors.New("homeassistant: call failed")

	// ErrClosed is returned for requests pending when the connection closes.
	ErrClosed = errors.New("homeassistant: connection closed")

	// ErrInvalidConfig is returned by NewClient for an unusable configuration.
	ErrInvalidConfig = errors.New("homeassistant: invalid configuration")
)
