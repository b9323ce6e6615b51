// Package database provides the durable store for Hostel Gate.
//
// Two drivers are supported:
//   - sqlite (default): a single file, WAL mode, one connection
//   - postgres: via the pgx stdlib driver, for multi-gate deployments
//
// Repositories write SQL once with ? placeholders and portable types (TEXT
// ids and timestamps, INTEGER booleans). The DB wrapper rebinds placeholders
// for PostgreSQL.
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite", Path: "./data/hostelgate.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the migrations package and applied in version
// order, each in its own transaction. Every .up.sql has a matching .down.sql.
package database
