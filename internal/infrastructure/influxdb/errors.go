package influxdb

import "errors"

var (
	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrConnectionFailed is returned when the server cannot be pinged at
	// startup.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
