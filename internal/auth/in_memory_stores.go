package auth

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// InMemoryKV provides an in-memory implementation of the KeyValueStore interface.
type InMemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewInMemoryKV creates a new InMemoryKV.
func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Set stores value under key, overwriting any previous value.
func (s *InMemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Get returns the value for key. Expired entries are reported as missing.
func (s *InMemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes key.
func (s *InMemoryKV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Take removes key and returns the value it held, under a single lock.
func (s *InMemoryKV) Take(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)
	if !e.expires.IsZero() && s.now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

// DeleteExpired removes every expired entry and returns how many were dropped.
func (s *InMemoryKV) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, e := range s.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries, expired or not.
func (s *InMemoryKV) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
