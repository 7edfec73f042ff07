package integration

import "errors"

// Domain errors for the integration package.
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("integration: entry not found")

	// ErrAlreadyConfigured is returned when adding a printer whose IP is
	// already configured.
	ErrAlreadyConfigured = errors.New("integration: printer already configured")

	// ErrInvalidEntry is returned when entry validation fails.
	ErrInvalidEntry = errors.New("integration: invalid entry")

	// ErrAlreadyLoaded is returned when setting up an entry that is running.
	ErrAlreadyLoaded = errors.New("integration: entry already loaded")

	// ErrNotLoaded is returned when unloading an entry that is not running.
	ErrNotLoaded = errors.New("integration: entry not loaded")
)
