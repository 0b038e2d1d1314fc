package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"authflow-go/internal/auth"
	"authflow-go/internal/logging"
	"authflow-go/internal/navigate"

	"github.com/sirupsen/logrus"
)

const (
	flowCookieName    = "flow_id"
	sessionCookieName = "session_id"
	sessionDuration   = 24 * time.Hour
)

//
// Authentication Handlers
//

// handleLogin starts an authorization flow and redirects the user agent to
// the authorization endpoint.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), a.Logger)

	redirect, err := a.Flows.Start(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to start authorization flow")
		http.Error(w, "Failed to start sign-in", http.StatusInternalServerError)
		return
	}

	if redirect.FlowID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     flowCookieName,
			Value:    redirect.FlowID,
			Path:     "/",
			MaxAge:   int(a.Config.Store.FlowTTL.Seconds()),
			HttpOnly: true,
			Secure:   a.secureCookies(),
			SameSite: http.SameSiteLaxMode,
		})
	}

	if err := navigate.NewHTTPRedirect(w, r).Navigate(r.Context(), redirect.URL); err != nil {
		log.WithError(err).Error("Failed to redirect to authorization endpoint")
		http.Error(w, "Failed to start sign-in", http.StatusInternalServerError)
		return
	}
	log.WithField("flow_id", redirect.FlowID).Info("Redirected to authorization endpoint")
}

// handleCallback completes the flow the authorization server redirected back
// with and opens a session.
func (a *Application) handleCallback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), a.Logger)
	q := r.URL.Query()

	var flowID string
	if cookie, err := r.Cookie(flowCookieName); err == nil {
		flowID = cookie.Value
	}
	clearCookie(w, flowCookieName)

	if providerErr := q.Get("error"); providerErr != "" {
		log.WithFields(logrus.Fields{
			"flow_id":           flowID,
			"error":             providerErr,
			"error_description": q.Get("error_description"),
		}).Warn("Authorization server returned an error")
		if err := a.Callbacks.Abandon(r.Context(), flowID); err != nil {
			log.WithError(err).WithField("flow_id", flowID).Error("Failed to discard denied flow")
		}
		http.Error(w, "Authorization was denied: "+providerErr, http.StatusBadRequest)
		return
	}

	result, err := a.Callbacks.Complete(r.Context(), flowID, q.Get("code"), q.Get("state"))
	if err != nil {
		status := callbackStatus(err)
		log.WithError(err).WithField("flow_id", flowID).Warn("Authorization callback failed")
		http.Error(w, http.StatusText(status), status)
		return
	}

	sess, err := a.SessionStore.Create(r.Context(), result.Subject, result.Token.AccessToken, sessionDuration)
	if err != nil {
		log.WithError(err).Error("Failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	log.WithFields(logrus.Fields{"flow_id": flowID, "subject": result.Subject}).Info("Signed in")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// callbackStatus maps a completion error to a response status.
func callbackStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCallback):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrFlowNotFound),
		errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrTokenExchange),
		errors.Is(err, auth.ErrMissingIDToken),
		errors.Is(err, auth.ErrNonceMismatch):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// handleLogout clears the user's session.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		// If there's no cookie, there's nothing to do. Redirect to login.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	// Delete the session from the store. We ignore errors here.
	_ = a.SessionStore.Delete(r.Context(), cookie.Value)
	clearCookie(w, sessionCookieName)

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

//
// Application Handlers
//

// handleDashboard is a protected handler that greets the signed-in subject.
func (a *Application) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := getSessionFromContext(r)
	if !ok {
		// This should not happen if the middleware is applied correctly.
		http.Error(w, "Could not identify user", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Welcome, %s!", sess.Subject)
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (a *Application) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: a.Config.Store.Driver}
	status := http.StatusOK
	if a.DB != nil {
		if err := a.DB.DB().PingContext(r.Context()); err != nil {
			logging.FromContext(r.Context(), a.Logger).WithError(err).Warn("Health check failed")
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *Application) secureCookies() bool {
	u, err := url.Parse(a.Config.OAuth.RedirectURI)
	return err == nil && u.Scheme == "https"
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
