package entity

import "errors"

// Domain errors for the entity package.
var (
	// ErrSnapshotUnsupported is returned by Camera.Snapshot.
	ErrSnapshotUnsupported = errors.New("entity: camera snapshots are not supported")

	// ErrInvalidConfig indicates an unusable platform configuration.
	ErrInvalidConfig = errors.New("entity: invalid configuration")

	// ErrNotFound indicates no entity matches the lookup.
	ErrNotFound = errors.New("entity: not found")
)
