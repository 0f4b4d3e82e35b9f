// Package migrations creates the scoring schema.
package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the registry of schema migrations, discovered from this package.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}

// Up initializes the migration tables and applies every pending migration.
// It returns the applied group, which is empty when nothing was pending.
func Up(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("migrations.Up: init: %w", err)
	}
	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations.Up: %w", err)
	}
	return group, nil
}

// Down rolls back the last applied group.
func Down(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m := migrate.NewMigrator(db, Migrations)
	group, err := m.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations.Down: %w", err)
	}
	return group, nil
}

// Status lists every known migration with its applied state.
func Status(ctx context.Context, db *bun.DB) (migrate.MigrationSlice, error) {
	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("migrations.Status: init: %w", err)
	}
	return m.MigrationsWithStatus(ctx)
}
