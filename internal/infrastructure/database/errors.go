package database

import "errors"

// Domain errors for the database package.
var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing indicates an applied migration has no source file.
	ErrMigrationMissing = errors.New("database: migration not found")

	// ErrNoDownMigration indicates a migration cannot be rolled back.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
