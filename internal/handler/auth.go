package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/referidos/internal/directus"
	"github.com/dukerupert/referidos/internal/middleware"
	"github.com/dukerupert/referidos/internal/render"
	"github.com/dukerupert/referidos/internal/state"
	"github.com/dukerupert/referidos/internal/store"
	"github.com/dukerupert/referidos/internal/vault"
)

// defaultSessionTTL applies when the upstream reports no expiry at all.
const defaultSessionTTL = 8 * time.Hour

type AuthHandler struct {
	pages         *Pages
	registry      *state.Registry
	sessionStore  *store.SessionStore
	sealer        *vault.Sealer
	secureCookies bool
	now           func() time.Time
	logger        *slog.Logger
}

func NewAuthHandler(pages *Pages, registry *state.Registry, ss *store.SessionStore, sealer *vault.Sealer, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		pages:         pages,
		registry:      registry,
		sessionStore:  ss,
		sealer:        sealer,
		secureCookies: secureCookies,
		now:           time.Now,
		logger:        logger,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessionStore.GetByToken(cookie.Value); err == nil && sess != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	h.pages.Write(w, r, state.State{Screen: state.ScreenLogin}, nil)
}

// Login authenticates against the collection API. The new controller is
// only registered once both login and the first load succeed.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	c := h.registry.New()
	res, err := c.Login(r.Context(), email, password)
	if err != nil {
		h.logger.Info("login failed", "email", email, "kind", directus.KindOf(err))
		h.pages.Write(w, r, c.Snapshot(), func(p *render.Page) {
			p.LoginEmail = email
		})
		return
	}

	sealed, err := h.sealer.Seal(res.Token)
	if err != nil {
		h.logger.Error("seal token", "error", err)
		http.Error(w, "Error interno", http.StatusInternalServerError)
		return
	}

	st := c.Snapshot()
	expiresAt := h.expiry(res)
	sess, err := h.sessionStore.Create(sealed, st.UserName, st.Email, expiresAt)
	if err != nil {
		h.logger.Error("create session", "error", err)
		http.Error(w, "Error interno", http.StatusInternalServerError)
		return
	}
	h.registry.Put(sess.Token, c)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(expiresAt.Sub(h.now()).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
	redirect(w, r, "/")
}

// expiry prefers the lifetime reported at login, then the token's own exp
// claim.
func (h *AuthHandler) expiry(res *directus.LoginResult) time.Time {
	if res.Expires > 0 {
		return h.now().Add(res.Expires)
	}
	if exp, ok := directus.TokenExpiry(res.Token); ok && exp.After(h.now()) {
		return exp
	}
	return h.now().Add(defaultSessionTTL)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if c, ok := h.registry.Get(cookie.Value); ok {
			c.Logout()
			h.registry.Remove(cookie.Value)
		}
		if sess, err := h.sessionStore.GetByToken(cookie.Value); err == nil && sess != nil {
			if err := h.sessionStore.Delete(sess.ID); err != nil {
				h.logger.Error("delete session", "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
	redirect(w, r, "/login")
}
