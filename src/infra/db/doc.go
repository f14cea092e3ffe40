// Package db provides database connection and transaction management.
//
// This package is responsible for:
//   - PostgreSQL connection pool initialization
//   - Connection health checks
//   - Transaction helpers
//   - Schema migrations (goose, embedded SQL files)
//
// Example usage:
//
//	pg, err := db.New(ctx, cfg.Database, log)
//	if err != nil {
//	    return err
//	}
//	defer pg.Close()
//	if err := pg.Migrate(ctx); err != nil {
//	    return err
//	}
package db
