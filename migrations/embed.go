// Package migrations embeds the ledger schema and applies it with
// golang-migrate.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed *.sql
var files embed.FS

// Names lists the embedded migration files in version order.
func Names() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply migrates the database behind pool to the latest version. Applied
// versions are tracked in schema_migrations, so Apply can run on every deploy.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrations: open source: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{SchemaName: "public"})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrations: postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("migrations: dirty database version %d", dirty.Version)
		}
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}
