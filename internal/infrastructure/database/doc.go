// Package database provides SQLite storage for the KNXnet/IP daemon.
//
// The daemon persists two things: every group address it has observed
// on the bus (with last value and telegram count) and every gateway
// discovery has found. Both are written by the bridge's recorder
// through prepared statements on the embedded sql.DB.
//
// The connection is opened with WAL mode so reads never block the
// per-telegram upserts, a busy timeout against transient lock
// contention, and a pool pinned to one connection to match SQLite's
// single-writer model. The file is chmod'd to 0600.
//
// Schema changes ship as embedded migrations, applied at startup:
//
//	db, err := database.Open(database.Config{Path: "knxipd.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry defaults,
// and every .up.sql has a matching .down.sql so MigrateDown can back
// out the latest change during development.
package database
