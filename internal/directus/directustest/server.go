// Package directustest provides an in-memory collection API for tests.
package directustest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dukerupert/referidos/internal/model"
)

const (
	Email    = "ana@example.com"
	Password = "secreto"
	Token    = "test-access-token"
)

// Server fakes the auth, items and ping endpoints for one collection.
type Server struct {
	*httptest.Server

	Collection string

	mu      sync.Mutex
	members []model.Member
	nextID  int64
	failing map[string]int
	hanging map[string]bool
	calls   map[string]int
	release chan struct{}
}

// New starts a server for collection "matriz" and closes it with t.
func New(t testing.TB, members ...model.Member) *Server {
	t.Helper()
	s := &Server{
		Collection: "matriz",
		nextID:     1,
		failing:    make(map[string]int),
		hanging:    make(map[string]bool),
		calls:      make(map[string]int),
		release:    make(chan struct{}),
	}
	for _, m := range members {
		s.add(m)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	t.Cleanup(func() { close(s.release) })
	return s
}

// Fail makes every request to route answer with status until cleared with 0.
// route is one of "login", "list", "create", "update" or "ping".
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failing, route)
		return
	}
	s.failing[route] = status
}

// Hang makes requests to route block until the caller gives up or the test
// ends.
func (s *Server) Hang(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hanging[route] = true
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Members returns a copy of the stored collection.
func (s *Server) Members() []model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Member(nil), s.members...)
}

func (s *Server) add(m model.Member) model.Member {
	if m.ID == 0 {
		m.ID = s.nextID
	}
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
	s.members = append(s.members, m)
	return m
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	route := s.route(r)

	s.mu.Lock()
	s.calls[route]++
	status := s.failing[route]
	hang := s.hanging[route]
	s.mu.Unlock()

	if hang {
		select {
		case <-r.Context().Done():
		case <-s.release:
		}
		return
	}
	if status != 0 {
		writeError(w, status, "Service unavailable")
		return
	}

	switch route {
	case "login":
		s.login(w, r)
	case "ping":
		w.Write([]byte("pong"))
	case "list", "create", "update":
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "Invalid user credentials.")
			return
		}
		switch route {
		case "list":
			s.list(w, r)
		case "create":
			s.create(w, r)
		case "update":
			s.update(w, r)
		}
	default:
		writeError(w, http.StatusNotFound, "Route doesn't exist.")
	}
}

func (s *Server) route(r *http.Request) string {
	items := "/items/" + s.Collection
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		return "login"
	case r.Method == http.MethodGet && r.URL.Path == "/server/ping":
		return "ping"
	case r.Method == http.MethodGet && r.URL.Path == items:
		return "list"
	case r.Method == http.MethodPost && r.URL.Path == items:
		return "create"
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, items+"/"):
		return "update"
	}
	return "unknown"
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email != Email || req.Password != Password {
		writeError(w, http.StatusUnauthorized, "Invalid user credentials.")
		return
	}
	writeData(w, map[string]any{
		"access_token": Token,
		"expires":      900000,
		"user":         map[string]string{"first_name": "Ana", "email": Email},
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	members := s.Members()
	if r.URL.Query().Get("limit") == "1" && len(members) > 1 {
		members = members[:1]
	}
	writeData(w, members)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var m model.Member
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload.")
		return
	}
	m.ID = 0
	s.mu.Lock()
	m = s.add(m)
	s.mu.Unlock()
	writeData(w, m)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id.")
		return
	}
	var patch model.MemberFields
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.members {
		m := &s.members[i]
		if m.ID != id {
			continue
		}
		apply(&m.Name, patch.Name)
		apply(&m.IDNumber, patch.IDNumber)
		apply(&m.Address, patch.Address)
		apply(&m.Phone, patch.Phone)
		apply(&m.Founder, patch.Founder)
		apply(&m.Complete, patch.Complete)
		writeData(w, *m)
		return
	}
	writeError(w, http.StatusForbidden, "You don't have permission to access this.")
}

func apply(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"message": msg}},
	})
}
