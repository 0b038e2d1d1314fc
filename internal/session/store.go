package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is the signed-in state established by a completed callback.
type Session struct {
	ID          string
	Subject     string
	AccessToken string
	ExpiresAt   time.Time
}

// Store defines the interface for session management.
type Store interface {
	// Create opens a session for the subject and returns it.
	Create(ctx context.Context, subject, accessToken string, duration time.Duration) (*Session, error)
	// Get returns the live session with the given ID.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired drops every session past its expiry and reports how many went.
	DeleteExpired(ctx context.Context) (int64, error)
}
