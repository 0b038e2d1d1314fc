package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// failingReader simulates an unavailable random source.
type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

// Mock KeyValueStore that can be told to fail on a specific Set call.
type mockKV struct {
	*InMemoryKV
	mu        sync.Mutex
	sets      int
	failOnSet int // 1-based; 0 disables
	takeErr   error
}

func newMockKV() *mockKV {
	return &mockKV{InMemoryKV: NewInMemoryKV()}
}

func (m *mockKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.sets++
	n := m.sets
	m.mu.Unlock()
	if m.failOnSet != 0 && n == m.failOnSet {
		return errors.New("storage quota exceeded")
	}
	return m.InMemoryKV.Set(ctx, key, value, ttl)
}

func (m *mockKV) Take(ctx context.Context, key string) (string, bool, error) {
	if m.takeErr != nil {
		return "", false, m.takeErr
	}
	return m.InMemoryKV.Take(ctx, key)
}

// Mock Navigator
type mockNavigator struct {
	urls []string
	err  error
}

func (m *mockNavigator) Navigate(ctx context.Context, url string) error {
	if m.err != nil {
		return m.err
	}
	m.urls = append(m.urls, url)
	return nil
}

// Mock Flow Store
type mockFlowStore struct {
	records map[string]FlowRecord
	putErr  error
}

func newMockFlowStore() *mockFlowStore {
	return &mockFlowStore{records: make(map[string]FlowRecord)}
}

func (m *mockFlowStore) Put(ctx context.Context, flowID string, rec FlowRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[flowID] = rec
	return nil
}

func (m *mockFlowStore) Take(ctx context.Context, flowID string) (*FlowRecord, error) {
	rec, ok := m.records[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(m.records, flowID)
	return &rec, nil
}
