package telemetry

import "errors"

var (
	// ErrEntryRequired is returned when a history call has no entry ID.
	ErrEntryRequired = errors.New("telemetry: entry id is required")

	// ErrInvalidRetention is returned when pruning with a non-positive age.
	ErrInvalidRetention = errors.New("telemetry: retention must be positive")
)
