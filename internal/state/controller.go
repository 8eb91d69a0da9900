package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/referidos/internal/aggregate"
	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/directus"
	"github.com/dukerupert/referidos/internal/model"
)

// API is the part of the collection client the controller needs.
type API interface {
	Login(ctx context.Context, email, password string) (*directus.LoginResult, error)
	ListMembers(ctx context.Context, token string) ([]model.Member, error)
	CreateMember(ctx context.Context, token string, fields model.MemberFields) (*model.Member, error)
	UpdateMember(ctx context.Context, token string, id int64, fields model.MemberFields) (*model.Member, error)
}

// Options configures a Controller.
type Options struct {
	API    API
	Config *config.Config
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// OnChange is called after every successful create, update or
	// mark-complete, outside the controller lock.
	OnChange func(Change)
}

// Controller serializes all changes to one session's State. Network calls
// run without holding the lock; at most one runs at a time.
type Controller struct {
	mu   sync.Mutex
	st   State
	gen  uint64
	opts Options

	classifier model.Classifier
	limit      int
	logger     *slog.Logger
}

// New creates a controller in the empty, logged-out state.
func New(opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		st:         emptyState(),
		opts:       opts,
		classifier: opts.Config.Classifier(),
		limit:      opts.Config.App.MaxMembersPerFounder,
		logger:     opts.Logger,
	}
}

// Snapshot returns a copy of the current state with expired flashes dropped.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Flash != nil && !c.opts.Now().Before(c.st.Flash.Expires) {
		c.st.Flash = nil
	}
	return c.st.clone()
}

// Login authenticates and loads the member collection. The session only
// leaves the login screen when both succeed.
func (c *Controller) Login(ctx context.Context, email, password string) (*directus.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		err := &config.ValidationError{Field: "email", Message: "Ingrese su correo y contraseña"}
		c.fail(err.Message)
		return nil, err
	}

	gen, _, err := c.begin(false)
	if err != nil {
		return nil, err
	}

	res, err := c.opts.API.Login(ctx, email, password)
	if err != nil {
		c.finish(gen, func(s *State) {
			*s = emptyState()
			c.flash(s, FlashError, directus.UserMessage(err))
		})
		return nil, err
	}

	members, err := c.opts.API.ListMembers(ctx, res.Token)
	if err != nil {
		c.finish(gen, func(s *State) {
			*s = emptyState()
			c.flash(s, FlashError, "Error al cargar datos: "+directus.UserMessage(err))
		})
		return nil, err
	}

	c.finish(gen, func(s *State) {
		*s = emptyState()
		s.Token = res.Token
		s.User = res.User
		s.Email = email
		s.UserName = res.User.DisplayName(email)
		s.Members = members
		s.LoadedAt = c.opts.Now()
		s.Screen = ScreenDashboard
	})
	c.logger.Info("operator logged in", "user", email, "members", len(members))
	return res, nil
}

// Restore rebuilds an authenticated session from a stored token, for
// example after a restart. A failed load keeps the dashboard with an empty
// collection and an error flash.
func (c *Controller) Restore(ctx context.Context, token, userName, email string) error {
	c.mu.Lock()
	c.gen++
	c.st = emptyState()
	c.st.Token = token
	c.st.UserName = userName
	c.st.Email = email
	c.st.Screen = ScreenDashboard
	c.mu.Unlock()
	return c.Reload(ctx)
}

// Logout clears everything. A request still in flight is discarded when it
// completes.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.st = emptyState()
}

// Reload replaces the member collection with a fresh fetch.
func (c *Controller) Reload(ctx context.Context) error {
	gen, token, err := c.begin(true)
	if err != nil {
		return err
	}
	members, err := c.opts.API.ListMembers(ctx, token)
	c.finish(gen, func(s *State) {
		if err != nil {
			c.flash(s, FlashError, "Error al cargar datos: "+directus.UserMessage(err))
			return
		}
		s.Members = members
		s.LoadedAt = c.opts.Now()
	})
	return err
}

// Navigate switches between the dashboard and the founders screen, closing
// any open overlays.
func (c *Controller) Navigate(target string) error {
	screen, ok := ParseScreen(target)
	if !ok {
		return ErrUnknownScreen
	}
	return c.update(func(s *State) error {
		s.Screen = screen
		s.Overlays = nil
		s.Edit = nil
		s.SelectedFounder = ""
		return nil
	})
}

// OpenMemberList selects founder and shows its members.
func (c *Controller) OpenMemberList(founder string) error {
	return c.update(func(s *State) error {
		if !containsFounder(s.Members, founder) {
			return ErrNoFounder
		}
		s.SelectedFounder = founder
		s.push(OverlayMemberList)
		return nil
	})
}

// CloseMemberList clears the founder selection along with any form opened from it.
func (c *Controller) CloseMemberList() error {
	return c.update(func(s *State) error {
		s.SelectedFounder = ""
		s.pop(OverlayMemberList)
		s.pop(OverlayMemberEdit)
		s.Edit = nil
		return nil
	})
}

// OpenCreate opens an empty form for the selected founder.
func (c *Controller) OpenCreate() error {
	return c.update(func(s *State) error {
		founder := s.SelectedFounder
		if founder != "" && !aggregate.CanAdd(s.Members, founder, c.limit) {
			c.flash(s, FlashError, c.fullMessage(founder))
			return ErrFounderFull
		}
		s.Edit = &EditForm{Fields: model.MemberFields{Founder: founder, Complete: c.incompleteValue()}}
		s.push(OverlayMemberEdit)
		return nil
	})
}

// OpenEdit opens the form populated with member id.
func (c *Controller) OpenEdit(id int64) error {
	return c.update(func(s *State) error {
		m, ok := aggregate.FindMember(s.Members, id)
		if !ok {
			return ErrMemberNotFound
		}
		fields := m.Fields()
		if fields.Complete == "" {
			fields.Complete = c.incompleteValue()
		}
		s.Edit = &EditForm{MemberID: m.ID, Fields: fields}
		s.push(OverlayMemberEdit)
		return nil
	})
}

// CloseEdit discards the open form.
func (c *Controller) CloseEdit() error {
	return c.update(func(s *State) error {
		s.Edit = nil
		s.pop(OverlayMemberEdit)
		return nil
	})
}

// OpenPending shows the members whose process is not complete.
func (c *Controller) OpenPending() error {
	return c.update(func(s *State) error {
		s.push(OverlayPendingList)
		return nil
	})
}

// ClosePending hides the pending list.
func (c *Controller) ClosePending() error {
	return c.update(func(s *State) error {
		s.pop(OverlayPendingList)
		return nil
	})
}

// Submit validates fields and creates or updates the member of the open
// form. id names the form the fields were posted from, 0 for a new member;
// a different open form yields ErrNoForm. Invalid input is reported on the
// form and never sent.
func (c *Controller) Submit(ctx context.Context, id int64, fields model.MemberFields) (*Change, error) {
	fields = trimFields(fields)

	c.mu.Lock()
	if !c.st.Authenticated() {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if c.st.Busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.st.Edit == nil || c.st.Edit.MemberID != id {
		c.mu.Unlock()
		return nil, ErrNoForm
	}
	if errs := c.validate(fields); len(errs) > 0 {
		c.st.Edit.Fields = fields
		c.st.Edit.Errors = errs
		c.mu.Unlock()
		return nil, firstError(errs)
	}
	if c.joinsFounder(id, fields.Founder) && !aggregate.CanAdd(c.st.Members, fields.Founder, c.limit) {
		c.st.Edit.Fields = fields
		c.flash(&c.st, FlashError, c.fullMessage(fields.Founder))
		c.mu.Unlock()
		return nil, ErrFounderFull
	}
	c.st.Busy = true
	gen, token := c.gen, c.st.Token
	c.mu.Unlock()

	var (
		saved  *model.Member
		err    error
		action string
	)
	if id == 0 {
		action = model.ActionCreated
		saved, err = c.opts.API.CreateMember(ctx, token, fields)
	} else {
		action = model.ActionUpdated
		saved, err = c.opts.API.UpdateMember(ctx, token, id, fields)
	}
	if err != nil {
		c.finish(gen, func(s *State) {
			if s.Edit != nil {
				s.Edit.Fields = fields
				s.Edit.Errors = nil
			}
			c.flash(s, FlashError, "Error al guardar socio: "+directus.UserMessage(err))
		})
		return nil, err
	}

	change := c.changeFor(action, saved, id, fields)
	members, loadErr := c.opts.API.ListMembers(ctx, token)
	c.finish(gen, func(s *State) {
		s.Edit = nil
		s.pop(OverlayMemberEdit)
		if loadErr != nil {
			c.flash(s, FlashError, "Error al cargar datos: "+directus.UserMessage(loadErr))
			return
		}
		s.Members = members
		s.LoadedAt = c.opts.Now()
		if s.SelectedFounder != "" {
			s.push(OverlayMemberList)
		}
		c.flash(s, FlashSuccess, "Socio guardado correctamente")
	})
	c.notify(gen, change)
	return change, nil
}

// MarkComplete sets a member's completion flag to the canonical complete
// literal and reloads. The pending list stays open.
func (c *Controller) MarkComplete(ctx context.Context, id int64) (*Change, error) {
	c.mu.Lock()
	if !c.st.Authenticated() {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if c.st.Busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	m, ok := aggregate.FindMember(c.st.Members, id)
	if !ok {
		c.mu.Unlock()
		return nil, ErrMemberNotFound
	}
	c.st.Busy = true
	gen, token := c.gen, c.st.Token
	c.mu.Unlock()

	patch := model.MemberFields{Complete: c.classifier.CompleteValue()}
	saved, err := c.opts.API.UpdateMember(ctx, token, id, patch)
	if err != nil {
		c.finish(gen, func(s *State) {
			c.flash(s, FlashError, "Error al completar proceso: "+directus.UserMessage(err))
		})
		return nil, err
	}

	m.Complete = patch.Complete
	if saved != nil && saved.ID != 0 {
		m = mergeSaved(m, *saved)
	}
	change := &Change{Action: model.ActionCompleted, Member: m}

	members, loadErr := c.opts.API.ListMembers(ctx, token)
	c.finish(gen, func(s *State) {
		change.Actor = s.UserName
		if loadErr != nil {
			c.flash(s, FlashError, "Error al cargar datos: "+directus.UserMessage(loadErr))
			return
		}
		s.Members = members
		s.LoadedAt = c.opts.Now()
		c.flash(s, FlashSuccess, fmt.Sprintf("Proceso de %s completado", m.Name))
	})
	c.notify(gen, change)
	return change, nil
}

// begin marks the session busy and returns the generation and token the
// request runs under.
func (c *Controller) begin(needAuth bool) (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if needAuth && !c.st.Authenticated() {
		return 0, "", ErrNotAuthenticated
	}
	if c.st.Busy {
		return 0, "", ErrBusy
	}
	c.st.Busy = true
	return c.gen, c.st.Token, nil
}

// finish applies fn and clears the busy flag unless the session was reset
// while the request ran.
func (c *Controller) finish(gen uint64, fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.st.Busy = false
	fn(&c.st)
}

// update applies a local transition, or returns ErrBusy while a request is
// in flight. fn may return an error, in which case only changes to the
// flash are kept.
func (c *Controller) update(fn func(*State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.st.Authenticated() {
		return ErrNotAuthenticated
	}
	if c.st.Busy {
		return ErrBusy
	}
	next := c.st.clone()
	if err := fn(&next); err != nil {
		c.st.Flash = next.Flash
		return err
	}
	c.st = next
	return nil
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flash(&c.st, FlashError, msg)
}

func (c *Controller) flash(s *State, kind FlashKind, msg string) {
	s.Flash = &Flash{
		Kind:    kind,
		Message: msg,
		Expires: c.opts.Now().Add(c.opts.Config.UI.ErrorMessageDuration),
	}
}

func (c *Controller) notify(gen uint64, change *Change) {
	c.mu.Lock()
	current := gen == c.gen
	if change.Actor == "" {
		change.Actor = c.st.UserName
	}
	c.mu.Unlock()
	if current && c.opts.OnChange != nil {
		c.opts.OnChange(*change)
	}
}

func (c *Controller) changeFor(action string, saved *model.Member, id int64, fields model.MemberFields) *Change {
	m := model.Member{
		ID:       id,
		Name:     fields.Name,
		IDNumber: fields.IDNumber,
		Address:  fields.Address,
		Phone:    fields.Phone,
		Founder:  fields.Founder,
		Complete: fields.Complete,
	}
	if saved != nil {
		m = mergeSaved(m, *saved)
	}
	return &Change{Action: action, Member: m}
}

func (c *Controller) validate(f model.MemberFields) map[string]string {
	errs := map[string]string{}
	check := func(kind, value string) {
		var verr *config.ValidationError
		if err := c.opts.Config.ValidateField(kind, value); errors.As(err, &verr) {
			errs[kind] = verr.Message
		}
	}
	check(config.FieldName, f.Name)
	check(config.FieldIDNumber, f.IDNumber)
	check(config.FieldAddress, f.Address)
	check(config.FieldPhone, f.Phone)
	if f.Founder == "" {
		errs["founder"] = "El fundador es obligatorio"
	}
	return errs
}

// joinsFounder reports whether saving member id under founder adds a member
// to that founder's group: always for a new member, and for an edit that
// moves the member to another founder. Callers hold c.mu.
func (c *Controller) joinsFounder(id int64, founder string) bool {
	if id == 0 {
		return true
	}
	m, ok := aggregate.FindMember(c.st.Members, id)
	return !ok || m.Founder != founder
}

func (c *Controller) fullMessage(founder string) string {
	return fmt.Sprintf("%s ya tiene %d socios", founder, c.limit)
}

func (c *Controller) incompleteValue() string {
	if v := c.opts.Config.App.CompleteValues.Incomplete; len(v) > 0 {
		return v[0]
	}
	return "No"
}

// firstError returns the error for the first invalid field in form order.
func firstError(errs map[string]string) error {
	for _, kind := range []string{config.FieldName, config.FieldIDNumber, config.FieldAddress, config.FieldPhone, "founder"} {
		if msg, ok := errs[kind]; ok {
			return &config.ValidationError{Field: kind, Message: msg}
		}
	}
	return nil
}

func trimFields(f model.MemberFields) model.MemberFields {
	return model.MemberFields{
		Name:     strings.TrimSpace(f.Name),
		IDNumber: strings.TrimSpace(f.IDNumber),
		Address:  strings.TrimSpace(f.Address),
		Phone:    strings.TrimSpace(f.Phone),
		Founder:  strings.TrimSpace(f.Founder),
		Complete: strings.TrimSpace(f.Complete),
	}
}

// mergeSaved overlays the non-empty fields the server returned.
func mergeSaved(m, saved model.Member) model.Member {
	if saved.ID != 0 {
		m.ID = saved.ID
	}
	for _, p := range []struct{ dst, src *string }{
		{&m.Name, &saved.Name},
		{&m.IDNumber, &saved.IDNumber},
		{&m.Address, &saved.Address},
		{&m.Phone, &saved.Phone},
		{&m.Founder, &saved.Founder},
		{&m.Complete, &saved.Complete},
	} {
		if *p.src != "" {
			*p.dst = *p.src
		}
	}
	return m
}

func containsFounder(members []model.Member, founder string) bool {
	for _, f := range aggregate.UniqueFounders(members) {
		if f == founder {
			return true
		}
	}
	return false
}
