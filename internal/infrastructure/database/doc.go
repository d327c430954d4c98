// Package database provides SQLite connectivity for the bridge's
// persistent state: the bridge identity and the device identity ledger.
//
// This package manages:
//   - Database connection with WAL mode
//   - Schema migrations read from an fs.FS
//   - Transaction helper
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration has both .up.sql and .down.sql
package database
