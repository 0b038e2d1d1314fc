package app

import (
	"context"
	"net/http"
	"time"

	"authflow-go/internal/logging"
	"authflow-go/internal/session"

	"github.com/sirupsen/logrus"
)

// contextKey is a custom type to use as a key for context values.
type contextKey string

// sessionContextKey is the key for storing the session in the request context.
const sessionContextKey = contextKey("session")

// requireAuth is a middleware that ensures a user is authenticated.
// If the user is not authenticated, it redirects them to the login page.
func (a *Application) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		sess, err := a.SessionStore.Get(r.Context(), cookie.Value)
		if err != nil {
			logging.FromContext(r.Context(), a.Logger).WithError(err).Debug("middleware: rejected session")
			// Clear the invalid cookie
			clearCookie(w, sessionCookieName)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, withSession(r, sess))
	})
}

// withSession adds the session to the request's context.
func withSession(r *http.Request, sess *session.Session) *http.Request {
	ctx := context.WithValue(r.Context(), sessionContextKey, sess)
	return r.WithContext(ctx)
}

// getSessionFromContext retrieves the session from the request's context.
func getSessionFromContext(r *http.Request) (*session.Session, bool) {
	sess, ok := r.Context().Value(sessionContextKey).(*session.Session)
	return sess, ok && sess != nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an ID and logs its outcome.
func (a *Application) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logging.NewRequestID()
		r = r.WithContext(logging.WithRequestID(r.Context(), requestID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		a.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Debug("request handled")
	})
}
