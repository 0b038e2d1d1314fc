package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"authflow-go/internal/auth"
	"authflow-go/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// fakeProvider plays the token endpoint of an authorization server. It signs
// ID tokens carrying whatever nonce the last authorization URL asked for.
type fakeProvider struct {
	*httptest.Server
	mu       sync.Mutex
	nonce    string
	subject  string
	verifier string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{subject: "user-123"}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		p.mu.Lock()
		defer p.mu.Unlock()
		p.verifier = r.PostForm.Get("code_verifier")

		claims := auth.IDTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   p.subject,
				Audience:  jwt.ClaimStrings{"reminders.tipten.nl"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Nonce: p.nonce,
		}
		idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		}))
	}))
	t.Cleanup(p.Close)
	return p
}

// authorize mimics the user approving the request at the authorization
// endpoint: it remembers the nonce and returns the state to echo back.
func (p *fakeProvider) authorize(t *testing.T, location string) (state string) {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	p.mu.Lock()
	p.nonce = u.Query().Get("nonce")
	p.mu.Unlock()
	return u.Query().Get("state")
}

func testConfig(provider *fakeProvider) *config.Config {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.OAuth.TokenURL = provider.URL + "/oauth/token"
	cfg.OAuth.IDTokenSigningKey = testSigningKey
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// Mock flow store that refuses every write.
type failingFlowStore struct{}

func (failingFlowStore) Put(ctx context.Context, flowID string, rec auth.FlowRecord) error {
	return errors.New("disk full")
}

func (failingFlowStore) Take(ctx context.Context, flowID string) (*auth.FlowRecord, error) {
	return nil, auth.ErrFlowNotFound
}
