package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"authflow-go/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func login(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code, "handler returned wrong status code")
	return rr
}

func callback(handler http.Handler, query url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHandlers_Login(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeProvider(t)))

	rr := login(t, app.Routes())

	// Assert: Check that the redirect goes to the authorization endpoint
	location := rr.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "http://localhost:3073/oauth/authorize?"), location)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Equal(t, "reminders.tipten.nl", u.Query().Get("client_id"))

	cookie := findCookie(rr, flowCookieName)
	require.NotNil(t, cookie, "login must bind the flow to the user agent")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 1000, cookie.MaxAge)
}

func TestHandlers_LoginStoreFailure(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeProvider(t)))
	flows, err := auth.NewFlowInitiator(auth.FlowConfig{
		AuthorizationURL: app.Config.OAuth.AuthorizationURL,
		ClientID:         app.Config.OAuth.ClientID,
		RedirectURI:      app.Config.OAuth.RedirectURI,
	}, failingFlowStore{})
	require.NoError(t, err)
	app.Flows = flows

	rr := httptest.NewRecorder()
	app.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"), "no navigation after a storage failure")
	assert.Nil(t, findCookie(rr, flowCookieName))
}

func TestHandlers_CallbackSignsIn(t *testing.T) {
	provider := newFakeProvider(t)
	app := newTestApp(t, testConfig(provider))
	handler := app.Routes()

	loginRR := login(t, handler)
	state := provider.authorize(t, loginRR.Header().Get("Location"))
	flowCookie := findCookie(loginRR, flowCookieName)

	rr := callback(handler, url.Values{"code": {"auth-code"}, "state": {state}}, flowCookie)
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	sessionCookie := findCookie(rr, sessionCookieName)
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	cleared := findCookie(rr, flowCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(sessionCookie)
	dash := httptest.NewRecorder()
	handler.ServeHTTP(dash, req)
	assert.Equal(t, http.StatusOK, dash.Code)
	assert.Equal(t, "Welcome, user-123!", dash.Body.String())

	// The same callback cannot be replayed
	replay := callback(handler, url.Values{"code": {"auth-code"}, "state": {state}}, flowCookie)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
}

func TestHandlers_CallbackFailures(t *testing.T) {
	tests := []struct {
		name       string
		query      func(state string) url.Values
		withCookie bool
		wantStatus int
	}{
		{
			name:       "provider error",
			query:      func(string) url.Values { return url.Values{"error": {"access_denied"}} },
			withCookie: true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing code",
			query:      func(state string) url.Values { return url.Values{"state": {state}} },
			withCookie: true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "state mismatch",
			query:      func(string) url.Values { return url.Values{"code": {"c"}, "state": {"forged"}} },
			withCookie: true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no flow cookie",
			query:      func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
			withCookie: false,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider(t)
			app := newTestApp(t, testConfig(provider))
			handler := app.Routes()

			loginRR := login(t, handler)
			state := provider.authorize(t, loginRR.Header().Get("Location"))

			var cookies []*http.Cookie
			if tt.withCookie {
				cookies = append(cookies, findCookie(loginRR, flowCookieName))
			}
			rr := callback(handler, tt.query(state), cookies...)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Nil(t, findCookie(rr, sessionCookieName))
		})
	}
}

func TestHandlers_CallbackProviderErrorDiscardsFlow(t *testing.T) {
	provider := newFakeProvider(t)
	app := newTestApp(t, testConfig(provider))
	handler := app.Routes()

	loginRR := login(t, handler)
	state := provider.authorize(t, loginRR.Header().Get("Location"))
	flowCookie := findCookie(loginRR, flowCookieName)

	rr := callback(handler, url.Values{"error": {"access_denied"}, "state": {state}}, flowCookie)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	ctx := context.Background()
	for _, base := range []string{auth.StateVerifyKey, auth.NonceOriginalKey} {
		_, ok, err := app.FlowKV.Get(ctx, auth.FlowKey(base, flowCookie.Value))
		require.NoError(t, err)
		assert.False(t, ok, "%s must be discarded once the provider denies the flow", base)
	}

	// A late success callback for the same flow is refused
	rr = callback(handler, url.Values{"code": {"c"}, "state": {state}}, flowCookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlers_CallbackNonceMismatch(t *testing.T) {
	provider := newFakeProvider(t)
	app := newTestApp(t, testConfig(provider))
	handler := app.Routes()

	loginRR := login(t, handler)
	state := provider.authorize(t, loginRR.Header().Get("Location"))
	provider.mu.Lock()
	provider.nonce = "nonce-of-another-flow"
	provider.mu.Unlock()

	rr := callback(handler, url.Values{"code": {"c"}, "state": {state}}, findCookie(loginRR, flowCookieName))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlers_SingleFlowMode(t *testing.T) {
	provider := newFakeProvider(t)
	cfg := testConfig(provider)
	cfg.OAuth.SingleFlow = true
	app := newTestApp(t, cfg)
	handler := app.Routes()

	first := login(t, handler)
	second := login(t, handler)
	assert.Nil(t, findCookie(second, flowCookieName), "single-flow mode has no flow id to bind")

	// Only the newest flow can complete
	staleState := provider.authorize(t, first.Header().Get("Location"))
	rr := callback(handler, url.Values{"code": {"c"}, "state": {staleState}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	third := login(t, handler)
	state := provider.authorize(t, third.Header().Get("Location"))
	rr = callback(handler, url.Values{"code": {"c"}, "state": {state}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestHandlers_Logout(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeProvider(t)))
	handler := app.Routes()

	sess, err := app.SessionStore.Create(context.Background(), "user-123", "", sessionDuration)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.ID})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	_, err = app.SessionStore.Get(req.Context(), sess.ID)
	assert.Error(t, err)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestHandlers_Healthz(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeProvider(t)))

	rr := httptest.NewRecorder()
	app.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Store)
}

func TestCallbackStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, callbackStatus(auth.ErrInvalidCallback))
	assert.Equal(t, http.StatusUnauthorized, callbackStatus(auth.ErrStateMismatch))
	assert.Equal(t, http.StatusUnauthorized, callbackStatus(auth.ErrNonceMismatch))
	assert.Equal(t, http.StatusInternalServerError, callbackStatus(assert.AnError))
}
