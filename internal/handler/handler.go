// Package handler serves the dashboard. Every interaction drives the
// session's state.Controller and answers with the re-rendered app.
package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"github.com/dukerupert/referidos/internal/auth"
	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/render"
	"github.com/dukerupert/referidos/internal/state"
	"github.com/dukerupert/referidos/internal/store"
)

const recentActivity = 8

// Pages renders view models for full loads and htmx swaps.
type Pages struct {
	cfg      *config.Config
	renderer *render.Renderer
	activity *store.ActivityStore
	notice   template.HTML
	now      func() time.Time
	logger   *slog.Logger
}

func NewPages(cfg *config.Config, renderer *render.Renderer, activity *store.ActivityStore, logger *slog.Logger) *Pages {
	return &Pages{
		cfg:      cfg,
		renderer: renderer,
		activity: activity,
		notice:   render.Markdown(cfg.App.Notice),
		now:      time.Now,
		logger:   logger,
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// Write renders st: the #app container for htmx requests, the full
// document otherwise.
func (p *Pages) Write(w http.ResponseWriter, r *http.Request, st state.State, adjust func(*render.Page)) {
	in := render.Input{
		Config:    p.cfg,
		Notice:    p.notice,
		CSRFToken: csrf.Token(r),
		Now:       p.now(),
	}
	if id, ok := auth.FromContext(r.Context()); ok {
		in.SessionTag = id.Tag()
	}
	if st.Authenticated() && p.activity != nil {
		entries, err := p.activity.Recent(recentActivity)
		if err != nil {
			p.logger.Error("recent activity", "error", err)
		}
		in.Activity = entries
	}

	page := render.Build(st, in)
	if adjust != nil {
		adjust(&page)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	var err error
	if isHTMX(r) {
		err = p.renderer.App(w, page)
	} else {
		err = p.renderer.Page(w, page)
	}
	switch {
	case errors.Is(err, render.ErrTemplate):
		http.Error(w, "Error interno", http.StatusInternalServerError)
	case err != nil:
		p.logger.Debug("write response", "path", r.URL.Path, "error", err)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
