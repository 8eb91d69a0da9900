package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/referidos/internal/auth"
	"github.com/dukerupert/referidos/internal/model"
	"github.com/dukerupert/referidos/internal/state"
	ws "github.com/dukerupert/referidos/internal/websocket"
)

// AppHandler maps dashboard interactions onto the session controller.
type AppHandler struct {
	pages    *Pages
	registry *state.Registry
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewAppHandler(pages *Pages, registry *state.Registry, hub *ws.Hub, logger *slog.Logger) *AppHandler {
	return &AppHandler{
		pages:    pages,
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// controller returns the session's controller, restoring it from the stored
// token when the process has none, for example after a restart.
func (h *AppHandler) controller(r *http.Request) (*state.Controller, auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, id, false
	}
	c, created := h.registry.GetOrCreate(id.SessionToken)
	if created {
		if err := c.Restore(r.Context(), id.AccessToken, id.UserName, id.Email); err != nil {
			h.logger.Warn("restore session", "session", id.SessionID, "error", err)
		}
	}
	return c, id, true
}

// act runs fn against the session controller and answers with the new state.
func (h *AppHandler) act(fn func(ctx context.Context, c *state.Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _, ok := h.controller(r)
		if !ok {
			redirect(w, r, "/login")
			return
		}
		if err := fn(r.Context(), c); err != nil && !h.handled(w, r, err) {
			return
		}
		h.pages.Write(w, r, c.Snapshot(), nil)
	}
}

// handled reports whether rendering should go ahead after err. Errors the
// controller already turned into a flash or form message render as usual.
func (h *AppHandler) handled(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, state.ErrBusy):
		http.Error(w, "Operación en curso", http.StatusConflict)
		return false
	case errors.Is(err, state.ErrNotAuthenticated):
		redirect(w, r, "/login")
		return false
	case errors.Is(err, state.ErrUnknownScreen):
		http.Error(w, "Pantalla desconocida", http.StatusNotFound)
		return false
	case errors.Is(err, state.ErrMemberNotFound):
		http.Error(w, "Socio no encontrado", http.StatusNotFound)
		return false
	case errors.Is(err, state.ErrNoForm):
		http.Error(w, "No hay formulario abierto", http.StatusConflict)
		return false
	}
	h.logger.Debug("action rejected", "path", r.URL.Path, "error", err)
	return true
}

func (h *AppHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.act(func(context.Context, *state.Controller) error { return nil })(w, r)
}

func (h *AppHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	screen := r.PathValue("screen")
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.Navigate(screen)
	})(w, r)
}

func (h *AppHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.act(func(ctx context.Context, c *state.Controller) error {
		return c.Reload(ctx)
	})(w, r)
}

func (h *AppHandler) OpenMemberList(w http.ResponseWriter, r *http.Request) {
	founder := r.PathValue("founder")
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.OpenMemberList(founder)
	})(w, r)
}

func (h *AppHandler) CloseMemberList(w http.ResponseWriter, r *http.Request) {
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.CloseMemberList()
	})(w, r)
}

func (h *AppHandler) NewMemberForm(w http.ResponseWriter, r *http.Request) {
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.OpenCreate()
	})(w, r)
}

func (h *AppHandler) EditMemberForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.OpenEdit(id)
	})(w, r)
}

func (h *AppHandler) CloseEditForm(w http.ResponseWriter, r *http.Request) {
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.CloseEdit()
	})(w, r)
}

func (h *AppHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.OpenPending()
	})(w, r)
}

func (h *AppHandler) ClosePending(w http.ResponseWriter, r *http.Request) {
	h.act(func(_ context.Context, c *state.Controller) error {
		return c.ClosePending()
	})(w, r)
}

// CreateMember and UpdateMember both submit the open form. The path id must
// name the record that form edits.
func (h *AppHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, 0)
}

func (h *AppHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	h.submit(w, r, id)
}

func (h *AppHandler) submit(w http.ResponseWriter, r *http.Request, id int64) {
	fields := model.MemberFields{
		Name:     r.FormValue("nombre"),
		IDNumber: r.FormValue("cedula"),
		Address:  r.FormValue("direccion"),
		Phone:    r.FormValue("telefono"),
		Founder:  r.FormValue("fundador"),
		Complete: r.FormValue("completo"),
	}
	h.act(func(ctx context.Context, c *state.Controller) error {
		change, err := c.Submit(ctx, id, fields)
		h.broadcast(r, change)
		return err
	})(w, r)
}

func (h *AppHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	h.act(func(ctx context.Context, c *state.Controller) error {
		change, err := c.MarkComplete(ctx, id)
		h.broadcast(r, change)
		return err
	})(w, r)
}

func (h *AppHandler) broadcast(r *http.Request, change *state.Change) {
	if change == nil || h.hub == nil {
		return
	}
	origin := ""
	if id, ok := auth.FromContext(r.Context()); ok {
		origin = id.Tag()
	}
	h.hub.Broadcast(ws.MemberChanged(*change, origin))
}
