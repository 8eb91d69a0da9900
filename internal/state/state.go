// Package state holds the per-session view state of the dashboard and the
// controller that is the only way to change it.
package state

import (
	"errors"
	"time"

	"github.com/dukerupert/referidos/internal/model"
)

// Screen is a top-level view. Exactly one is active.
type Screen string

const (
	ScreenLogin     Screen = "login"
	ScreenDashboard Screen = "dashboard"
	ScreenFounders  Screen = "founders"
)

// Overlay is a modal stacked above the active screen.
type Overlay string

const (
	OverlayMemberList  Overlay = "member_list"
	OverlayMemberEdit  Overlay = "member_edit"
	OverlayPendingList Overlay = "pending_list"
)

// ParseScreen maps a navigation target to a screen reachable after login.
func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case ScreenDashboard, ScreenFounders:
		return Screen(s), true
	}
	return "", false
}

var (
	ErrBusy             = errors.New("another request is in flight")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrFounderFull      = errors.New("founder has reached the member limit")
	ErrNoFounder        = errors.New("founder not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrNoForm           = errors.New("no member form is open")
	ErrUnknownScreen    = errors.New("unknown screen")
)

// FlashKind distinguishes error banners from confirmations.
type FlashKind string

const (
	FlashError   FlashKind = "error"
	FlashSuccess FlashKind = "success"
)

// Flash is a transient message that disappears at Expires.
type Flash struct {
	Kind    FlashKind
	Message string
	Expires time.Time
}

// EditForm is the open create or edit form. MemberID is zero in create mode.
type EditForm struct {
	MemberID int64
	Fields   model.MemberFields
	Errors   map[string]string
}

// Creating reports whether the form creates a new member.
func (f *EditForm) Creating() bool {
	return f.MemberID == 0
}

// State is a snapshot of one session's view.
type State struct {
	Token    string
	User     *model.User
	UserName string
	Email    string

	// Members is always the full collection as of LoadedAt.
	Members  []model.Member
	LoadedAt time.Time

	// SelectedFounder is empty when no member list is open.
	SelectedFounder string

	Screen   Screen
	Overlays []Overlay
	Edit     *EditForm
	Flash    *Flash
	Busy     bool
}

// Authenticated reports whether the session holds a token.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// HasOverlay reports whether o is open.
func (s State) HasOverlay(o Overlay) bool {
	for _, cur := range s.Overlays {
		if cur == o {
			return true
		}
	}
	return false
}

// Top returns the topmost overlay, or "" when none is open.
func (s State) Top() Overlay {
	if len(s.Overlays) == 0 {
		return ""
	}
	return s.Overlays[len(s.Overlays)-1]
}

// Change describes a successful mutation.
type Change struct {
	Action string
	Member model.Member
	Actor  string
}

func (s *State) push(o Overlay) {
	if s.HasOverlay(o) {
		return
	}
	s.Overlays = append(s.Overlays, o)
}

func (s *State) pop(o Overlay) {
	out := s.Overlays[:0]
	for _, cur := range s.Overlays {
		if cur != o {
			out = append(out, cur)
		}
	}
	s.Overlays = out
}

func (s State) clone() State {
	c := s
	c.Members = append([]model.Member(nil), s.Members...)
	c.Overlays = append([]Overlay(nil), s.Overlays...)
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	if s.Edit != nil {
		e := *s.Edit
		if s.Edit.Errors != nil {
			e.Errors = make(map[string]string, len(s.Edit.Errors))
			for k, v := range s.Edit.Errors {
				e.Errors[k] = v
			}
		}
		c.Edit = &e
	}
	if s.Flash != nil {
		f := *s.Flash
		c.Flash = &f
	}
	return c
}

func emptyState() State {
	return State{Screen: ScreenLogin, Members: []model.Member{}}
}
