// Package database provides the SQLite connection behind the command
// audit log.
//
// It manages:
//   - the connection, with WAL mode and a busy timeout
//   - schema migrations read from an fs.FS (see the migrations package)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction.
package database
