package db

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// InitDB opens the database and checks the connection.
func InitDB(driver, url string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, err
		}
		// One writer at a time; in-memory databases exist per connection.
		db.SetMaxOpenConns(1)
	}

	slog.Info("database connected", "driver", driver)
	return db, nil
}

// RunMigrations applies every pending migration found under dir, which holds
// one subdirectory per driver ("sqlite", "postgres").
func RunMigrations(db *sqlx.DB, dir string) error {
	var (
		instance database.Driver
		sub      string
		err      error
	)
	switch db.DriverName() {
	case DriverSQLite:
		instance, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
		sub = "sqlite"
	case DriverPostgres:
		instance, err = postgres.WithInstance(db.DB, &postgres.Config{})
		sub = "postgres"
	default:
		return fmt.Errorf("unsupported database driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver instance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir+"/"+sub, db.DriverName(), instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, _, _ := m.Version()
	slog.Info("migrations applied", "version", version)
	return nil
}
