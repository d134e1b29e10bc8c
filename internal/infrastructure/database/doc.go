// Package database provides the SQLite store behind the accessory registry.
//
// Open applies the configured pragmas (WAL, busy timeout, foreign keys) and
// restricts the file to its owner. Schema changes are versioned SQL files
// read from any fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements.
package database
