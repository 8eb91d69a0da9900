package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/referidos/internal/auth"
	"github.com/dukerupert/referidos/internal/store"
	"github.com/dukerupert/referidos/internal/vault"
)

// SessionCookieName is the cookie carrying the local session token.
const SessionCookieName = "referidos_session"

// RequireAuth validates the session cookie, opens the sealed upstream token
// and populates the request Identity.
// HTMX-aware: returns HX-Redirect header instead of 303 redirect for HTMX requests.
func RequireAuth(sessions *store.SessionStore, sealer *vault.Sealer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				RedirectToLogin(w, r)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil {
				logger.Error("session lookup", "error", err)
				RedirectToLogin(w, r)
				return
			}
			if sess == nil {
				RedirectToLogin(w, r)
				return
			}

			accessToken, err := sealer.Open(sess.AccessToken)
			if err != nil {
				// Sealed under a previous secret.
				logger.Warn("unreadable session token", "session", sess.ID, "error", err)
				if err := sessions.Delete(sess.ID); err != nil {
					logger.Error("delete session", "error", err)
				}
				RedirectToLogin(w, r)
				return
			}

			id := auth.Identity{
				SessionID:    sess.ID,
				SessionToken: sess.Token,
				AccessToken:  accessToken,
				UserName:     sess.UserName,
				Email:        sess.Email,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), id)))
		})
	}
}

// RedirectToLogin sends the browser to the login screen.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
