package storage

import (
	"context"
	"fmt"
)

// DeleteExpired removes every entry whose expiry has passed.
func (s *SQLiteKV) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM flow_entries
		WHERE expires_at != 0 AND expires_at <= ?
	`
	result, err := s.db.ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired entries: %w", err)
	}

	return result.RowsAffected()
}

// Count returns the number of stored entries, expired or not.
func (s *SQLiteKV) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flow_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}
