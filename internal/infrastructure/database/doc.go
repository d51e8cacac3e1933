// Package database provides SQLite connectivity for the FlowLab run archive.
//
// It opens the database with foreign keys, a busy timeout and optional
// WAL mode, and applies the versioned schema migrations embedded by the
// migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
