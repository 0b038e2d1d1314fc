package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Config holds the database configuration
type Config struct {
	Path          string        // Path to the SQLite database file
	BusyTimeout   time.Duration // SQLite busy timeout
	EncryptionKey []byte        // Optional AES-256 key for values at rest
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Path:        "authflow.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: database path cannot be empty", ErrInvalidInput)
	}

	if c.BusyTimeout <= 0 {
		return fmt.Errorf("%w: busy timeout must be positive", ErrInvalidInput)
	}

	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != KeySize {
		return ErrInvalidKeySize
	}

	return nil
}

// OpenDatabase opens a SQLite database with the given configuration and
// applies migrations.
func OpenDatabase(ctx context.Context, cfg Config) (*SQLiteKV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Build DSN with busy timeout and other pragmas
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	kv, err := NewSQLiteKV(db, cfg.EncryptionKey)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := kv.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return kv, nil
}
