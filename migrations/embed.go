// Package migrations embeds the SQL schema migrations into the binary.
//
// Files follow YYYYMMDD_HHMMSS_description.(up|down).sql and are applied
// by database.DB.Migrate:
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package migrations

import "embed"

// FS holds every .sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
