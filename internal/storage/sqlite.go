package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// SQLiteKV is a key/value store for flow entries backed by SQLite. Values are
// sealed with AES-256-GCM when an encryption key is configured.
type SQLiteKV struct {
	db            *sql.DB
	encryptionKey []byte
	now           func() time.Time
}

// NewSQLiteKV wraps an open database. encryptionKey may be nil to store
// values in the clear.
func NewSQLiteKV(db *sql.DB, encryptionKey []byte) (*SQLiteKV, error) {
	if len(encryptionKey) != 0 && len(encryptionKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	// SQLite serialises writers anyway, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)
	return &SQLiteKV{db: db, encryptionKey: encryptionKey, now: time.Now}, nil
}

// DB returns the underlying database handle.
func (s *SQLiteKV) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// validateKey checks if the key is usable
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}
	return nil
}

// Set stores or replaces the value for key. A positive ttl sets an expiry.
func (s *SQLiteKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl < 0 {
		return fmt.Errorf("%w: ttl cannot be negative", ErrInvalidInput)
	}

	data := []byte(value)
	var nonce []byte
	if len(s.encryptionKey) > 0 {
		var err error
		data, nonce, err = EncryptValue(s.encryptionKey, data, []byte(key))
		if err != nil {
			return fmt.Errorf("failed to encrypt value: %w", err)
		}
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}

	query := `
		INSERT INTO flow_entries (key, value, nonce, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			nonce = excluded.nonce,
			expires_at = excluded.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, data, nonce, expiresAt); err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

// Get returns the value for key. Missing and expired entries report false.
func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var data, nonce []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value, nonce FROM flow_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)",
		key, s.now().UnixMilli()).Scan(&data, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get value: %w", err)
	}

	return s.openValue(key, data, nonce)
}

// Take removes key and returns the value it held. Only one caller can take a
// given entry; expired entries are removed but reported missing.
func (s *SQLiteKV) Take(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var data, nonce []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM flow_entries WHERE key = ? RETURNING value, nonce, expires_at",
		key).Scan(&data, &nonce, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to take value: %w", err)
	}
	if expiresAt != 0 && expiresAt <= s.now().UnixMilli() {
		return "", false, nil
	}
	return s.openValue(key, data, nonce)
}

func (s *SQLiteKV) openValue(key string, data, nonce []byte) (string, bool, error) {
	if len(nonce) > 0 {
		if len(s.encryptionKey) == 0 {
			return "", false, fmt.Errorf("value for %q is encrypted but no key is configured", key)
		}
		var err error
		data, err = DecryptValue(s.encryptionKey, data, nonce, []byte(key))
		if err != nil {
			return "", false, fmt.Errorf("failed to decrypt value: %w", err)
		}
	}
	return string(data), true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flow_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}
