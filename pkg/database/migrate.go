package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable keeps the schema version apart from other tools sharing the database.
const migrationsTable = "wfm_schema_migrations"

// MigrationState is the schema version recorded in the database next to
// the newest version compiled into the binary.
type MigrationState struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Pending reports whether RunMigrations has work to do.
func (s MigrationState) Pending() bool { return s.Current < s.Latest }

// RunMigrations applies every pending migration. A dirty schema, left by a
// migration that failed half way, is refused until an operator repairs it.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("schema is dirty, repair it before migrating")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database migrated", zap.Uint("version", version))
	return nil
}

// MigrationStatus reads the recorded version without changing anything.
// A database never migrated reports version 0.
func MigrationStatus(db *sql.DB) (MigrationState, error) {
	latest, err := latestMigration(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}
	m, err := newMigrator(db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Latest: latest}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return MigrationState{}, fmt.Errorf("read schema version: %w", err)
	default:
		state.Current, state.Dirty = version, dirty
	}
	return state, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

// latestMigration walks the embedded set and checks that every up has its down.
func latestMigration(fsys fs.FS) (uint, error) {
	src, err := iofs.New(fsys, "migrations")
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations embedded: %w", err)
	}
	for {
		if err := checkPair(src, version); err != nil {
			return 0, err
		}
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("walk migrations: %w", err)
		}
		version = next
	}
}

func checkPair(src source.Driver, version uint) error {
	up, _, err := src.ReadUp(version)
	if err != nil {
		return fmt.Errorf("migration %d has no up file: %w", version, err)
	}
	up.Close()
	down, _, err := src.ReadDown(version)
	if err != nil {
		return fmt.Errorf("migration %d has no down file: %w", version, err)
	}
	down.Close()
	return nil
}
