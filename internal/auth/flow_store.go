package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// StateVerifyKey holds the JSON encoded {code_verifier, state} pair.
	StateVerifyKey = "state_verify"
	// NonceOriginalKey holds the base64url encoded raw nonce material.
	NonceOriginalKey = "nonce_original"
)

// FlowRecord is everything the callback needs to validate a flow.
type FlowRecord struct {
	CodeVerifier  string
	State         string
	NonceOriginal string
}

// stateVerify is the persisted shape of the state_verify entry.
type stateVerify struct {
	CodeVerifier string `json:"code_verifier"`
	State        string `json:"state"`
}

// FlowStore persists flow records until the callback consumes them.
type FlowStore interface {
	// Put stores rec under flowID, replacing any previous record.
	Put(ctx context.Context, flowID string, rec FlowRecord) error
	// Take returns and deletes the record for flowID.
	Take(ctx context.Context, flowID string) (*FlowRecord, error)
}

// KeyValueStore is a minimal string store with optional expiry. A ttl of zero
// means the entry never expires.
type KeyValueStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	// Take atomically reads and removes key.
	Take(ctx context.Context, key string) (string, bool, error)
}

// KVFlowStore lays flow records out over a KeyValueStore using the
// state_verify / nonce_original keys. An empty flow ID maps to the bare keys.
type KVFlowStore struct {
	kv  KeyValueStore
	ttl time.Duration
}

// NewKVFlowStore creates a KVFlowStore whose entries expire after ttl.
func NewKVFlowStore(kv KeyValueStore, ttl time.Duration) *KVFlowStore {
	return &KVFlowStore{kv: kv, ttl: ttl}
}

// FlowKey returns the storage key for base under flowID.
func FlowKey(base, flowID string) string {
	if flowID == "" {
		return base
	}
	return base + ":" + flowID
}

// Put writes both entries. If the second write fails the first is removed so
// no half-written flow is left behind.
func (s *KVFlowStore) Put(ctx context.Context, flowID string, rec FlowRecord) error {
	if rec.CodeVerifier == "" || rec.State == "" || rec.NonceOriginal == "" {
		return fmt.Errorf("%w: incomplete flow record", ErrStorageWrite)
	}

	sv, err := json.Marshal(stateVerify{CodeVerifier: rec.CodeVerifier, State: rec.State})
	if err != nil {
		return fmt.Errorf("%w: marshal state_verify: %v", ErrStorageWrite, err)
	}

	svKey := FlowKey(StateVerifyKey, flowID)
	if err := s.kv.Set(ctx, svKey, string(sv), s.ttl); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageWrite, StateVerifyKey, err)
	}
	if err := s.kv.Set(ctx, FlowKey(NonceOriginalKey, flowID), rec.NonceOriginal, s.ttl); err != nil {
		_ = s.kv.Delete(ctx, svKey)
		return fmt.Errorf("%w: %s: %v", ErrStorageWrite, NonceOriginalKey, err)
	}
	return nil
}

// Take removes both entries for flowID and returns the record. The
// state_verify entry is taken atomically, so concurrent callers for the same
// flow cannot both succeed.
func (s *KVFlowStore) Take(ctx context.Context, flowID string) (*FlowRecord, error) {
	raw, svFound, err := s.kv.Take(ctx, FlowKey(StateVerifyKey, flowID))
	if err != nil {
		return nil, fmt.Errorf("taking %s: %w", StateVerifyKey, err)
	}
	nonce, nonceFound, err := s.kv.Take(ctx, FlowKey(NonceOriginalKey, flowID))
	if err != nil {
		return nil, fmt.Errorf("taking %s: %w", NonceOriginalKey, err)
	}

	if !svFound || !nonceFound {
		return nil, ErrFlowNotFound
	}

	var sv stateVerify
	if err := json.Unmarshal([]byte(raw), &sv); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrEncoding, StateVerifyKey, err)
	}

	return &FlowRecord{
		CodeVerifier:  sv.CodeVerifier,
		State:         sv.State,
		NonceOriginal: nonce,
	}, nil
}
