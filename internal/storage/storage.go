package storage

import (
	"context"
	"time"
)

// Storage is a flow store backend that can also be swept of expired entries.
type Storage interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Take(ctx context.Context, key string) (string, bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

var _ Storage = (*SQLiteKV)(nil)
