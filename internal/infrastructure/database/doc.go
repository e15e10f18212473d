// Package database provides SQLite connectivity for womgr.
//
// The database holds dashboard documents (for the sqlite dashboard store)
// and the device event history. The device registry itself is not
// persisted.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are embedded by the migrations package.
package database
