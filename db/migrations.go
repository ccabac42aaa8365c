package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var fs embed.FS

// migrationURL turns a connection string into the URL golang-migrate expects
func migrationURL(driver, dsn string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite://" + dsn, nil
	case DriverPostgres:
		for _, scheme := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(dsn, scheme) {
				return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
			}
		}
		return "", fmt.Errorf("postgres migrations need a postgres:// URL, got %q", dsn)
	default:
		return "", fmt.Errorf("unknown database driver %q", driver)
	}
}

func newMigrate(driver, dsn string) (*migrate.Migrate, error) {
	url, err := migrationURL(driver, dsn)
	if err != nil {
		return nil, err
	}

	d, err := iofs.New(fs, "migrations/"+driver)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration for the given driver
func Migrate(driver, dsn string) error {
	log.WithFields(log.Fields{"driver": driver}).Info("Running migrations")

	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"version": version, "dirty": dirty}).Info("Migrations complete")
	return nil
}

// Rollback reverts the given number of migrations
func Rollback(driver, dsn string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("rollback needs at least one step, got %d", steps)
	}
	log.WithFields(log.Fields{"driver": driver, "steps": steps}).Info("Rolling back migrations")

	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
