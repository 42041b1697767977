package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// runMigrations applies every pending up migration for the dialect.
func runMigrations(db *sql.DB, d dialect) error {
	source, err := iofs.New(migrationFS, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	var driver database.Driver
	switch d.name {
	case sqliteDialect.name:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case postgresDialect.name:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("no migration driver for %q", d.name)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, d.name, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	// m.Close is skipped: both drivers close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
