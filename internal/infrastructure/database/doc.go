// Package database provides SQLite storage for the edge agent.
//
// The database is the device's non-volatile key/value area: it holds the
// provisioned platform credentials so they survive power cycles. It is a
// single small file, opened once at startup; callers scope every read or
// write to one transaction via WithTx so no handle is held between calls.
//
// This package manages:
//   - Database connection with WAL mode
//   - Schema migrations (additive-only, embedded in the binary)
//   - Health checks and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
