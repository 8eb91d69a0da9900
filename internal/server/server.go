package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/handler"
	"github.com/dukerupert/referidos/internal/metrics"
	"github.com/dukerupert/referidos/internal/middleware"
	"github.com/dukerupert/referidos/internal/render"
	"github.com/dukerupert/referidos/internal/state"
	"github.com/dukerupert/referidos/internal/store"
	"github.com/dukerupert/referidos/internal/vault"
	ws "github.com/dukerupert/referidos/internal/websocket"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute

	readTimeout = 5 * time.Second
	idleTimeout = 120 * time.Second
	writeMargin = 5 * time.Second
)

// WriteTimeout is the response deadline for cfg. A mutation or a login makes
// two upstream calls in sequence, each bounded by directus.timeout.
func WriteTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.Directus.Timeout + writeMargin
}

// Options wires a Server.
type Options struct {
	Config  *config.Config
	DB      *sql.DB
	API     state.API
	Metrics *metrics.Metrics
	Sealer  *vault.Sealer
	// CSRFKey is the 32-byte gorilla/csrf key; nil disables CSRF checks.
	CSRFKey []byte
	Logger  *slog.Logger
}

type Server struct {
	cfg          *config.Config
	hub          *ws.Hub
	registry     *state.Registry
	authH        *handler.AuthHandler
	appH         *handler.AppHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	sealer       *vault.Sealer
	metrics      *metrics.Metrics
	csrfKey      []byte
	logger       *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.DB == nil || opts.API == nil || opts.Sealer == nil {
		return nil, errors.New("server: config, db, api and sealer are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	renderer, err := render.New(logger.With("component", "render"))
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	sessionStore := store.NewSessionStore(opts.DB)
	activityStore := store.NewActivityStore(opts.DB)

	stateLogger := logger.With("component", "state")
	activityLogger := logger.With("component", "activity")
	registry := state.NewRegistry(func() *state.Controller {
		return state.New(state.Options{
			API:    opts.API,
			Config: cfg,
			Logger: stateLogger,
			OnChange: func(ch state.Change) {
				if _, err := activityStore.Record(ch.Action, ch.Member.ID, ch.Member.Name, ch.Member.Founder, ch.Actor); err != nil {
					activityLogger.Error("record activity", "error", err)
				}
			},
		})
	})

	pages := handler.NewPages(cfg, renderer, activityStore, logger.With("component", "pages"))

	return &Server{
		cfg:          cfg,
		hub:          hub,
		registry:     registry,
		authH:        handler.NewAuthHandler(pages, registry, sessionStore, opts.Sealer, cfg.Server.SecureCookies, logger.With("component", "auth")),
		appH:         handler.NewAppHandler(pages, registry, hub, logger.With("component", "app")),
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(middleware.Limit{Requests: loginRateLimit, Window: loginRateWindow}),
		sealer:       opts.Sealer,
		metrics:      opts.Metrics,
		csrfKey:      opts.CSRFKey,
		logger:       logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Registry returns the live session controllers.
func (s *Server) Registry() *state.Registry {
	return s.registry
}

// Hub returns the change-notice hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Cleanup purges expired sessions with their controllers and stale rate
// limiter entries, then refreshes the active session gauge.
func (s *Server) Cleanup() {
	tokens, err := s.sessionStore.DeleteExpired()
	if err != nil {
		s.logger.Error("session cleanup", "error", err)
	}
	s.registry.Prune(tokens)
	limited := s.rateLimiter.Cleanup()
	if len(tokens) > 0 || limited > 0 {
		s.logger.Debug("cleanup", "sessions", len(tokens), "rate_limit_entries", limited)
	}

	if s.metrics != nil {
		if n, err := s.sessionStore.Count(); err == nil {
			s.metrics.ActiveSessions.Set(float64(n))
		}
	}
}

// HTTPServer returns the listener configuration for the router.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: WriteTimeout(s.cfg),
		IdleTimeout:  idleTimeout,
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /login", s.authH.LoginPage)
	outerMux.Handle("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	if s.metrics != nil {
		outerMux.Handle("GET /metrics", s.metrics.Handler())
	}

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.sealer, s.logger.With("component", "session"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	chain := []func(http.Handler) http.Handler{
		middleware.RequestLogger(s.logger.With("component", "http"), s.metrics),
		middleware.SecurityHeaders,
	}
	if len(s.csrfKey) > 0 {
		chain = append(chain, middleware.CSRF(s.csrfKey, s.cfg.Server.SecureCookies, s.cfg.Server.TrustedOrigins, s.logger.With("component", "csrf")))
	}
	return middleware.Chain(outerMux, chain...)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ClientIP(s.cfg.Server.TrustProxy))
	return rl(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)

	mux.HandleFunc("GET /", s.appH.Dashboard)
	mux.HandleFunc("POST /navigate/{screen}", s.appH.Navigate)
	mux.HandleFunc("POST /reload", s.appH.Reload)

	mux.HandleFunc("GET /founders/{founder}/members", s.appH.OpenMemberList)
	mux.HandleFunc("POST /overlays/member-list/close", s.appH.CloseMemberList)

	mux.HandleFunc("GET /members/new", s.appH.NewMemberForm)
	mux.HandleFunc("GET /members/{id}/edit", s.appH.EditMemberForm)
	mux.HandleFunc("POST /overlays/member-edit/close", s.appH.CloseEditForm)
	mux.HandleFunc("POST /members", s.appH.CreateMember)
	mux.HandleFunc("POST /members/{id}", s.appH.UpdateMember)

	mux.HandleFunc("GET /pending", s.appH.Pending)
	mux.HandleFunc("POST /overlays/pending/close", s.appH.ClosePending)
	mux.HandleFunc("POST /members/{id}/complete", s.appH.Complete)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.Server.TrustedOrigins, s.logger.With("component", "websocket")))
}
