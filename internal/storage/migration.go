package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLock ensures only one migration can run at a time
var migrationLock sync.Mutex

// MigrationStatus reports the schema version recorded by golang-migrate.
type MigrationStatus struct {
	Version int64
	Dirty   bool
}

// Migrate applies all pending database migrations
func (s *SQLiteKV) Migrate() error {
	migrationLock.Lock()
	defer migrationLock.Unlock()

	sourceInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// The driver shares the store's handle; closing the migrate instance
	// would close it, so it is left open.
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceInstance, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// GetMigrationStatus returns the current migration status
func (s *SQLiteKV) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	var status MigrationStatus
	err := s.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).
		Scan(&status.Version, &status.Dirty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no migration applied", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	return &status, nil
}
