package orchestrator

import (
	"net/http"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/security"
)

const (
	sessionCookieName = "nanoscale_session"
	sessionTTL        = 24 * time.Hour
	sessionIDLength   = 32
)

// startSession mints a new session bound to userID, persists it, and
// sets the session cookie on the response.
func (s *Server) startSession(w http.ResponseWriter, userID string) error {
	sessionID, err := security.GenerateSecretKey(sessionIDLength)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(sessionTTL).Unix()
	if err := s.store.PutSession(sessionID, userID, expiresAt); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(expiresAt, 0),
	})
	return nil
}

// currentUserID resolves the authenticated user's ID from the request's
// session cookie. ok is false if there is no session cookie, it names
// an unknown or expired session, or the store lookup fails.
func (s *Server) currentUserID(r *http.Request) (userID string, ok bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	userID, expiresAt, found, err := s.store.GetSession(cookie.Value)
	if err != nil || !found {
		return "", false
	}
	if time.Now().Unix() > expiresAt {
		_ = s.store.DeleteSession(cookie.Value)
		return "", false
	}
	return userID, true
}

// requireSession wraps next so it only runs for requests carrying a
// valid session cookie; anything else is rejected unauthorized.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.currentUserID(r); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}
