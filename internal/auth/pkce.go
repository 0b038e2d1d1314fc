package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// MinVerifierLength and MaxVerifierLength bound a PKCE code verifier (RFC 7636 section 4.1).
	MinVerifierLength = 43
	MaxVerifierLength = 128
	// DefaultVerifierLength is used when no length is configured.
	DefaultVerifierLength = 64

	// MinStateBytes is the smallest amount of randomness accepted behind a state token.
	MinStateBytes = 16
	// NonceBytes is the amount of random nonce material generated per flow.
	NonceBytes = 16

	// ChallengeMethodS256 is the only supported code_challenge_method.
	ChallengeMethodS256 = "S256"

	unreservedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// PKCEStore defines the contract for generating and checking PKCE code verifiers.
type PKCEStore interface {
	GenerateCodeVerifier(length int) (string, error)
	GenerateCodeChallenge(verifier string) (string, error)
	ValidateChallenge(challenge, verifier string) bool
}

// GenerateRandomBytes reads n bytes from r. A failing reader is reported as
// ErrRandomSourceUnavailable; callers treat it as fatal for the flow.
func GenerateRandomBytes(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrEncoding, n)
	}
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSourceUnavailable, err)
	}
	return b, nil
}

// Base64URLEncode encodes b with the URL-safe alphabet and no padding.
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Base64URLDecode reverses Base64URLEncode.
func Base64URLDecode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// SHA256 returns the SHA-256 digest of input.
func SHA256(input []byte) [32]byte {
	return sha256.Sum256(input)
}

// ComputeCodeChallenge derives the S256 code challenge for verifier.
func ComputeCodeChallenge(verifier string) string {
	sum := SHA256([]byte(verifier))
	return Base64URLEncode(sum[:])
}

// ComputeNonce derives the nonce sent in the authorization request from the raw nonce material.
func ComputeNonce(raw []byte) string {
	sum := SHA256(raw)
	return Base64URLEncode(sum[:])
}

// VerifyNonce checks that claimed (the nonce claim of an ID token) was derived
// from the stored nonce_original value.
func VerifyNonce(nonceOriginal, claimed string) error {
	raw, err := Base64URLDecode(nonceOriginal)
	if err != nil {
		return fmt.Errorf("decoding stored nonce: %w", err)
	}
	if len(raw) == 0 || claimed == "" {
		return ErrNonceMismatch
	}
	if subtle.ConstantTimeCompare([]byte(ComputeNonce(raw)), []byte(claimed)) != 1 {
		return ErrNonceMismatch
	}
	return nil
}

// PKCEGenerator implements PKCEStore on top of a secure random source.
type PKCEGenerator struct {
	random io.Reader
}

// NewPKCEGenerator returns a generator reading from crypto/rand.
func NewPKCEGenerator() *PKCEGenerator {
	return &PKCEGenerator{random: rand.Reader}
}

// NewPKCEGeneratorWithSource returns a generator reading from r.
func NewPKCEGeneratorWithSource(r io.Reader) *PKCEGenerator {
	return &PKCEGenerator{random: r}
}

// GenerateCodeVerifier returns a verifier of exactly length characters drawn
// uniformly from the unreserved character set.
func (g *PKCEGenerator) GenerateCodeVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("verifier length must be between %d and %d, got %d", MinVerifierLength, MaxVerifierLength, length)
	}

	// 256 is not a multiple of 66; bytes at or above the largest multiple are
	// rejected so every character is equally likely.
	limit := byte(len(unreservedChars) * (256 / len(unreservedChars)))
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		b, err := GenerateRandomBytes(g.random, len(buf))
		if err != nil {
			return "", err
		}
		for _, c := range b {
			if c >= limit {
				continue
			}
			out = append(out, unreservedChars[int(c)%len(unreservedChars)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateCodeChallenge returns the S256 challenge for a non-empty verifier.
func (g *PKCEGenerator) GenerateCodeChallenge(verifier string) (string, error) {
	if verifier == "" {
		return "", fmt.Errorf("%w: verifier cannot be empty", ErrEncoding)
	}
	return ComputeCodeChallenge(verifier), nil
}

// ValidateChallenge reports whether challenge is the S256 challenge of verifier.
func (g *PKCEGenerator) ValidateChallenge(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(ComputeCodeChallenge(verifier)), []byte(challenge)) == 1
}
