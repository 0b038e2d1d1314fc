package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is an in-memory implementation of the Store interface.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Create creates a new session for a subject.
func (s *InMemoryStore) Create(ctx context.Context, subject, accessToken string, duration time.Duration) (*Session, error) {
	if subject == "" {
		return nil, fmt.Errorf("session: subject is required")
	}
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	sess := Session{
		ID:          sessionID,
		Subject:     subject,
		AccessToken: accessToken,
		ExpiresAt:   s.now().Add(duration),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess

	return &sess, nil
}

// Get retrieves a session. Expired sessions are left for DeleteExpired.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrExpired
	}
	return &sess, nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteExpired removes expired sessions.
func (s *InMemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// generateSessionID creates a new random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generating id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
