// Package database provides SQLite connectivity for the bridge.
//
// It opens the database with WAL mode and a busy timeout, restricts the
// pool to a single connection, and applies schema migrations supplied as
// an fs.FS (normally the embedded migrations package).
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
