package auth

import "errors"

var (
	// ErrRandomSourceUnavailable is returned when secure randomness cannot be read.
	ErrRandomSourceUnavailable = errors.New("secure random source unavailable")
	// ErrEncoding is returned for malformed input to the encoders and derivers.
	ErrEncoding = errors.New("encoding failure")
	// ErrStorageWrite is returned when a flow record cannot be persisted.
	ErrStorageWrite = errors.New("flow record write failed")
	// ErrNavigation is returned when the user agent could not be sent to the authorization endpoint.
	ErrNavigation = errors.New("navigation failed")

	ErrFlowNotFound    = errors.New("flow not found or expired")
	ErrInvalidCallback = errors.New("invalid callback request")
	ErrStateMismatch   = errors.New("state mismatch")
	ErrNonceMismatch   = errors.New("nonce mismatch")
	ErrMissingIDToken  = errors.New("token response has no id_token")
	ErrTokenExchange   = errors.New("token exchange failed")
)
