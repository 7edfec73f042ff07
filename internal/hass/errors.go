package hass

import "errors"

var (
	// ErrNoClient is returned when a Bridge is built without an MQTT client.
	ErrNoClient = errors.New("hass: mqtt client is required")

	// ErrEntryAttached is returned when an entry is attached twice.
	ErrEntryAttached = errors.New("hass: entry already attached")
)
