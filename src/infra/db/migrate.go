package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}

// Migrate applies every pending migration. goose needs database/sql, so the
// pool is bridged through pgx's stdlib adapter for the duration of the run.
func (p *Postgres) Migrate(ctx context.Context) error {
	fsys, err := Migrations()
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(p.Pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		p.log.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	p.log.Info("database schema ready", "version", version)
	return nil
}
