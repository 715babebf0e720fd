// Package database opens the SQLite file that backs the publish history.
//
// The history is optional and purely diagnostic: the relay never replays
// from it. The package handles:
//   - Opening the file with WAL mode and a busy timeout
//   - Applying additive SQL migrations from an fs.FS
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(cfg.History)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql. Only
// forward migrations are applied; .down.sql files are ignored.
package database
