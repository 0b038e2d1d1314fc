package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required size for the encryption key (32 bytes for AES-256)
	KeySize = 32
	// NonceSize is the size of the nonce used in AES-GCM
	NonceSize = 12
)

var (
	ErrInvalidKeySize = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrInvalidNonce   = errors.New("invalid nonce size")
)

// EncryptValue encrypts plaintext using AES-256-GCM. additionalData is
// authenticated but not encrypted; the store passes the entry key so a
// ciphertext cannot be moved to another key.
func EncryptValue(key, plaintext, additionalData []byte) (ciphertext, nonce []byte, err error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = aesGCM.Seal(nil, nonce, plaintext, additionalData)
	return ciphertext, nonce, nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(key, ciphertext, nonce, additionalData []byte) (plaintext []byte, err error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aesGCM.NonceSize() {
		return nil, ErrInvalidNonce
	}

	plaintext, err = aesGCM.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
