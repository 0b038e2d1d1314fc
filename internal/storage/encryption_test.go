package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEncryption_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 bytes for AES-256
	plaintext := []byte(`{"code_verifier":"v","state":"s"}`)

	ciphertext, nonce, err := EncryptValue(key, plaintext, []byte("state_verify"))
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.Len(t, nonce, NonceSize)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptValue(key, ciphertext, nonce, []byte("state_verify"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestValueEncryption_InvalidKey(t *testing.T) {
	shortKey := []byte("too-short") // Less than 32 bytes

	_, _, err := EncryptValue(shortKey, []byte("secret"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestValueEncryption_InvalidNonce(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	ciphertext, _, err := EncryptValue(key, []byte("secret"), nil)
	require.NoError(t, err)

	_, err = DecryptValue(key, ciphertext, []byte("invalid-nonce"), nil)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestValueEncryption_InvalidCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	_, nonce, err := EncryptValue(key, []byte("secret"), nil)
	require.NoError(t, err)

	_, err = DecryptValue(key, []byte("invalid-ciphertext"), nonce, nil)
	assert.Error(t, err)
}

func TestValueEncryption_DifferentKey(t *testing.T) {
	key1 := []byte("0123456789abcdef0123456789abcdef")
	key2 := []byte("fedcba9876543210fedcba9876543210")

	ciphertext, nonce, err := EncryptValue(key1, []byte("secret"), nil)
	require.NoError(t, err)

	_, err = DecryptValue(key2, ciphertext, nonce, nil)
	assert.Error(t, err)
}

func TestValueEncryption_AdditionalDataBindsKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	ciphertext, nonce, err := EncryptValue(key, []byte("secret"), []byte("state_verify:a"))
	require.NoError(t, err)

	_, err = DecryptValue(key, ciphertext, nonce, []byte("state_verify:b"))
	assert.Error(t, err)
}
