package directus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/metrics"
	"github.com/dukerupert/referidos/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) (*Client, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(config.DirectusConfig{URL: server.URL, Collection: "matriz", Timeout: timeout}, m, logger)
	return c, m
}

func TestLoginSuccess(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "ana@example.com" || req.Password != "secreto" {
			t.Errorf("unexpected credentials: %+v", req)
		}
		w.Write([]byte(`{"data":{"access_token":"tok-1","expires":900000,"user":{"first_name":"Ana"}}}`))
	}, time.Second)

	res, err := c.Login(context.Background(), "ana@example.com", "secreto")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "tok-1" {
		t.Errorf("token = %q, want %q", res.Token, "tok-1")
	}
	if res.Expires != 15*time.Minute {
		t.Errorf("expires = %v, want 15m", res.Expires)
	}
	if got := res.User.DisplayName("ana@example.com"); got != "Ana" {
		t.Errorf("display name = %q, want %q", got, "Ana")
	}
	if got := testutil.ToFloat64(m.UpstreamRequests.WithLabelValues(OpLogin, "ok")); got != 1 {
		t.Errorf("login/ok counter = %v, want 1", got)
	}
}

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"remote message", 401, `{"errors":[{"message":"Invalid user credentials."}]}`, KindCredentials, "Invalid user credentials."},
		{"no payload", 401, `not json`, KindCredentials, "Credenciales inválidas"},
		{"server failure", 503, `{}`, KindServer, "Credenciales inválidas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, time.Second)

			_, err := c.Login(context.Background(), "ana@example.com", "mal")
			if KindOf(err) != tt.kind {
				t.Errorf("kind = %q, want %q (err %v)", KindOf(err), tt.kind, err)
			}
			if got := UserMessage(err); got != tt.message {
				t.Errorf("message = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestLoginTimeout(t *testing.T) {
	release := make(chan struct{})
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.Login(context.Background(), "a@b.co", "x")
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %q, want timeout (err %v)", KindOf(err), err)
	}
	if UserMessage(err) != msgLoginTimeout {
		t.Errorf("message = %q", UserMessage(err))
	}
	if got := testutil.ToFloat64(m.UpstreamRequests.WithLabelValues(OpLogin, "timeout")); got != 1 {
		t.Errorf("login/timeout counter = %v, want 1", got)
	}
}

func TestLoginNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(config.DirectusConfig{URL: url, Collection: "matriz", Timeout: time.Second}, nil, nil)
	_, err := c.Login(context.Background(), "a@b.co", "x")
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %q, want network (err %v)", KindOf(err), err)
	}
	if UserMessage(err) != msgNetwork {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestListMembers(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/matriz" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Query().Get("limit") != "-1" {
			t.Errorf("limit = %q, want -1", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"data":[
			{"idsocio":1,"nombre":"Ana","cedula":"1712345678","direccion":"Quito","telefono":"0991234567","fundador":"Luis","completo":"Sí"},
			{"idsocio":2,"nombre":"Bruno","fundador":"Luis","completo":"No"}
		]}`))
	}, time.Second)

	members, err := c.ListMembers(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len = %d, want 2", len(members))
	}
	if members[0].ID != 1 || members[0].Founder != "Luis" || members[0].Complete != "Sí" {
		t.Errorf("unexpected first member: %+v", members[0])
	}
}

func TestListMembersEmptyData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, time.Second)

	members, err := c.ListMembers(context.Background(), "tok")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if members == nil || len(members) != 0 {
		t.Errorf("members = %#v, want empty non-nil slice", members)
	}
}

func TestListMembersServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"Token expired."}]}`))
	}, time.Second)

	_, err := c.ListMembers(context.Background(), "old")
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if de.Kind != KindServer || de.Status != http.StatusUnauthorized {
		t.Errorf("kind/status = %q/%d", de.Kind, de.Status)
	}
	if de.Message != "Token expired." {
		t.Errorf("message = %q", de.Message)
	}
}

func TestListMembersTimeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.ListMembers(context.Background(), "tok")
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %q, want timeout", KindOf(err))
	}
	if UserMessage(err) != msgListTimeout {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestCreateMember(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/items/matriz" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var got map[string]string
		json.NewDecoder(r.Body).Decode(&got)
		if got["nombre"] != "Carla" || got["fundador"] != "Luis" {
			t.Errorf("body = %v", got)
		}
		w.Write([]byte(`{"data":{"idsocio":9,"nombre":"Carla","fundador":"Luis","completo":"No"}}`))
	}, time.Second)

	m, err := c.CreateMember(context.Background(), "tok", model.MemberFields{Name: "Carla", Founder: "Luis", Complete: "No"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID != 9 {
		t.Errorf("id = %d, want 9", m.ID)
	}
}

func TestCreateMemberFailureIsGeneric(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"Value for field \"cedula\" is not unique."}]}`))
	}, time.Second)

	_, err := c.CreateMember(context.Background(), "tok", model.MemberFields{Name: "Carla"})
	if UserMessage(err) != "Error al crear socio" {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestUpdateMemberPatchesOnlySetFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/items/matriz/7" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"completo":"Sí"}` {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{"data":{"idsocio":7,"completo":"Sí"}}`))
	}, time.Second)

	m, err := c.UpdateMember(context.Background(), "tok", 7, model.MemberFields{Complete: "Sí"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Complete != "Sí" {
		t.Errorf("completo = %q", m.Complete)
	}
}

func TestUpdateMemberFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, time.Second)

	_, err := c.UpdateMember(context.Background(), "tok", 7, model.MemberFields{Complete: "Sí"})
	if UserMessage(err) != "Error al actualizar socio" {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestPing(t *testing.T) {
	status := http.StatusOK
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/server/ping" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(status)
		w.Write([]byte("pong"))
	}, time.Second)

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
	status = http.StatusServiceUnavailable
	if err := c.Ping(context.Background()); KindOf(err) != KindServer {
		t.Errorf("kind = %q, want server", KindOf(err))
	}
}

func TestFieldsAndMissingFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"idsocio":1,"nombre":"Ana","cedula":"1","fundador":"Luis","completo":"No"}]}`))
	}, time.Second)

	keys, err := c.Fields(context.Background(), "tok")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	want := []string{"cedula", "completo", "fundador", "idsocio", "nombre"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	missing := MissingFields(keys)
	if len(missing) != 2 || missing[0] != "direccion" || missing[1] != "telefono" {
		t.Errorf("missing = %v, want [direccion telefono]", missing)
	}
	if got := MissingFields(model.RequiredWireFields); len(got) != 0 {
		t.Errorf("missing for full record = %v", got)
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("upstream-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, ok := TokenExpiry(signed)
	if !ok {
		t.Fatal("expected expiry from JWT")
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}

	if _, ok := TokenExpiry("opaque-static-token"); ok {
		t.Error("expected no expiry for opaque token")
	}
}

func TestUserMessageForOtherErrors(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Errorf("nil = %q", got)
	}
	if got := UserMessage(errors.New("boom")); got != msgUnexpected {
		t.Errorf("plain error = %q", got)
	}
	verr := &config.ValidationError{Field: "phone", Message: "El formato del phone no es válido"}
	if KindOf(verr) != KindValidation || UserMessage(verr) != verr.Message {
		t.Errorf("validation error not classified: %q %q", KindOf(verr), UserMessage(verr))
	}
}
