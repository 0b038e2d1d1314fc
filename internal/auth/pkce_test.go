package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKCE_GenerateCodeVerifier(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{
			name:    "valid length - 43",
			length:  43,
			wantErr: false,
		},
		{
			name:    "valid length - 128",
			length:  128,
			wantErr: false,
		},
		{
			name:    "invalid length - too short",
			length:  42,
			wantErr: true,
		},
		{
			name:    "invalid length - too long",
			length:  129,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkce := NewPKCEGenerator()
			verifier, err := pkce.GenerateCodeVerifier(tt.length)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, verifier)
				return
			}

			assert.NoError(t, err)
			assert.Len(t, verifier, tt.length)
			assert.Regexp(t, "^[A-Za-z0-9._~-]+$", verifier)
		})
	}
}

func TestPKCE_GenerateCodeVerifier_RejectsBiasedBytes(t *testing.T) {
	// 0xff is above the rejection limit and must be skipped; 0x00 maps to 'A'.
	src := bytes.NewReader(append(bytes.Repeat([]byte{0xff}, 43), bytes.Repeat([]byte{0x00}, 43)...))
	verifier, err := NewPKCEGeneratorWithSource(src).GenerateCodeVerifier(43)
	require.NoError(t, err)
	assert.Equal(t, string(bytes.Repeat([]byte("A"), 43)), verifier)
}

func TestPKCE_GenerateCodeVerifier_RandomSourceFailure(t *testing.T) {
	_, err := NewPKCEGeneratorWithSource(failingReader{}).GenerateCodeVerifier(64)
	assert.ErrorIs(t, err, ErrRandomSourceUnavailable)
}

func TestPKCE_GenerateCodeChallenge(t *testing.T) {
	sum := sha256.Sum256([]byte("test-verifier-123"))

	tests := []struct {
		name     string
		verifier string
		want     string
		wantErr  bool
	}{
		{
			name:     "valid verifier",
			verifier: "test-verifier-123",
			want:     base64URLEncode(sum[:]),
			wantErr:  false,
		},
		{
			name:     "empty verifier",
			verifier: "",
			want:     "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkce := NewPKCEGenerator()
			challenge, err := pkce.GenerateCodeChallenge(tt.verifier)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEncoding)
				assert.Empty(t, challenge)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, challenge)
			assert.Regexp(t, "^[A-Za-z0-9_-]+$", challenge)
		})
	}
}

func TestPKCE_ValidateChallenge(t *testing.T) {
	pkce := NewPKCEGenerator()
	verifier, err := pkce.GenerateCodeVerifier(43)
	require.NoError(t, err)

	challenge, err := pkce.GenerateCodeChallenge(verifier)
	require.NoError(t, err)

	tests := []struct {
		name      string
		challenge string
		verifier  string
		want      bool
	}{
		{
			name:      "valid pair",
			challenge: challenge,
			verifier:  verifier,
			want:      true,
		},
		{
			name:      "invalid verifier",
			challenge: challenge,
			verifier:  "wrong-verifier",
			want:      false,
		},
		{
			name:      "empty challenge",
			challenge: "",
			verifier:  verifier,
			want:      false,
		},
		{
			name:      "empty verifier",
			challenge: challenge,
			verifier:  "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := pkce.ValidateChallenge(tt.challenge, tt.verifier)
			assert.Equal(t, tt.want, valid)
		})
	}
}

func TestBase64URL_RoundTrip(t *testing.T) {
	for n := 0; n <= 96; n++ {
		b, err := GenerateRandomBytes(nil, n)
		require.NoError(t, err)

		encoded := Base64URLEncode(b)
		assert.NotContains(t, encoded, "=")
		assert.NotContains(t, encoded, "+")
		assert.NotContains(t, encoded, "/")

		decoded, err := Base64URLDecode(encoded)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(b, decoded), "round trip failed for length %d", n)
	}
}

func TestBase64URLDecode_Malformed(t *testing.T) {
	_, err := Base64URLDecode("not*base64")
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestGenerateRandomBytes(t *testing.T) {
	t.Run("reads requested length", func(t *testing.T) {
		b, err := GenerateRandomBytes(nil, MinStateBytes)
		require.NoError(t, err)
		assert.Len(t, b, MinStateBytes)
	})

	t.Run("negative length", func(t *testing.T) {
		_, err := GenerateRandomBytes(nil, -1)
		assert.ErrorIs(t, err, ErrEncoding)
	})

	t.Run("short source", func(t *testing.T) {
		_, err := GenerateRandomBytes(bytes.NewReader([]byte{1, 2, 3}), 16)
		assert.ErrorIs(t, err, ErrRandomSourceUnavailable)
	})

	t.Run("failing source", func(t *testing.T) {
		_, err := GenerateRandomBytes(failingReader{}, 16)
		assert.True(t, errors.Is(err, ErrRandomSourceUnavailable))
	})
}

func TestSHA256_Deterministic(t *testing.T) {
	inputs := [][]byte{nil, {}, []byte("a"), bytes.Repeat([]byte{0x42}, 1000)}
	for _, in := range inputs {
		first := SHA256(in)
		second := SHA256(in)
		assert.Equal(t, first, second)
		assert.Len(t, first, 32)
	}
}

func TestComputeCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B.
	assert.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		ComputeCodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	pkce := NewPKCEGenerator()
	v1, err := pkce.GenerateCodeVerifier(DefaultVerifierLength)
	require.NoError(t, err)
	v2, err := pkce.GenerateCodeVerifier(DefaultVerifierLength)
	require.NoError(t, err)

	assert.Equal(t, ComputeCodeChallenge(v1), ComputeCodeChallenge(v1))
	assert.NotEqual(t, ComputeCodeChallenge(v1), ComputeCodeChallenge(v2))
}

func TestVerifyNonce(t *testing.T) {
	raw := []byte("0123456789abcdef")
	original := Base64URLEncode(raw)
	nonce := ComputeNonce(raw)

	assert.NoError(t, VerifyNonce(original, nonce))
	assert.ErrorIs(t, VerifyNonce(original, "something-else"), ErrNonceMismatch)
	assert.ErrorIs(t, VerifyNonce(original, ""), ErrNonceMismatch)
	assert.ErrorIs(t, VerifyNonce("***", nonce), ErrEncoding)
	// the raw original must never match its own hash
	assert.ErrorIs(t, VerifyNonce(original, original), ErrNonceMismatch)
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
