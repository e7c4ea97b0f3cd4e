// Package database provides the SQLite store behind droidprobe's snapshot
// history.
//
// It manages:
//   - the connection (WAL mode, busy timeout, single writer)
//   - versioned migrations read from an fs.FS (the migrations package embeds
//     the production set)
//   - health checks for the API
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/droidprobe.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or have defaults,
// and every .up.sql file should have a matching .down.sql.
package database
