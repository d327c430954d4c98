package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when history is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the ping failure seen by Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClosed is returned by Ping after Close.
	ErrClosed = errors.New("influxdb: client closed")
)
