package server

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/database"
	"github.com/dukerupert/referidos/internal/directus"
	"github.com/dukerupert/referidos/internal/directus/directustest"
	"github.com/dukerupert/referidos/internal/metrics"
	"github.com/dukerupert/referidos/internal/model"
	"github.com/dukerupert/referidos/internal/vault"
	websocket "github.com/dukerupert/referidos/internal/websocket"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	srv  *Server
	http *httptest.Server
	api  *directustest.Server
}

func newHarness(t *testing.T, csrfKey []byte) *harness {
	t.Helper()
	return newHarnessWith(t, csrfKey, nil)
}

func newHarnessWith(t *testing.T, csrfKey []byte, adjust func(*config.Config)) *harness {
	t.Helper()
	api := directustest.New(t,
		model.Member{ID: 1, Name: "Rosa", IDNumber: "1712345678", Address: "Quito", Phone: "0991234567", Founder: "Luis", Complete: "No"},
	)

	cfg := config.DefaultConfig()
	cfg.Directus.URL = api.URL
	if adjust != nil {
		adjust(cfg)
	}
	require.NoError(t, cfg.Validate())

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sealer, err := vault.NewSealer("server-test")
	require.NoError(t, err)

	m := metrics.New()
	srv, err := New(Options{
		Config:  cfg,
		DB:      db,
		API:     directus.New(cfg.Directus, m, discard),
		Metrics: m,
		Sealer:  sealer,
		CSRFKey: csrfKey,
		Logger:  discard,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{srv: srv, http: ts, api: api}
}

func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *harness) login(t *testing.T, c *http.Client) {
	t.Helper()
	resp, err := c.PostForm(h.http.URL+"/login", url.Values{
		"email":    {directustest.Email},
		"password": {directustest.Password},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, "ok", got["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestProtectedRedirectsToLogin(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	resp, err := c.Get(h.http.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLoginDashboardAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)
	h.login(t, c)

	resp, err := c.Get(h.http.URL + "/")
	require.NoError(t, err)
	page := body(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Luis")

	h.srv.Cleanup()

	resp, err = http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	exposition := body(t, resp)
	assert.Contains(t, exposition, `referidos_upstream_requests_total{op="login",outcome="ok"} 1`)
	assert.Contains(t, exposition, "referidos_active_sessions 1")
	assert.Contains(t, exposition, "referidos_http_requests_total")
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	var last int
	for i := 0; i < loginRateLimit+1; i++ {
		resp, err := c.PostForm(h.http.URL+"/login", url.Values{"email": {"x@example.com"}, "password": {"no"}})
		require.NoError(t, err)
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestCSRFEnforced(t *testing.T) {
	h := newHarness(t, []byte(strings.Repeat("k", 32)))
	c := h.client(t)

	resp, err := c.PostForm(h.http.URL+"/login", url.Values{"email": {directustest.Email}, "password": {directustest.Password}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, h.api.Calls("login"))

	resp, err = c.Get(h.http.URL + "/login")
	require.NoError(t, err)
	page := body(t, resp)
	const marker = `name="gorilla.csrf.Token" value="`
	i := strings.Index(page, marker)
	require.True(t, i >= 0, "login form carries the csrf token")
	token := page[i+len(marker):]
	token = html.UnescapeString(token[:strings.IndexByte(token, '"')])

	resp, err = c.PostForm(h.http.URL+"/login", url.Values{
		"email":             {directustest.Email},
		"password":          {directustest.Password},
		"gorilla.csrf.Token": {token},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestMutationBroadcastsToOtherDashboards(t *testing.T) {
	h := newHarness(t, nil)
	actor := h.client(t)
	h.login(t, actor)
	watcher := h.client(t)
	h.login(t, watcher)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := ws.Dial(ctx, wsURL, &ws.DialOptions{HTTPClient: watcher})
	require.NoError(t, err)
	defer conn.CloseNow()

	for h.srv.Hub().ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("dashboard never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	req, _ := http.NewRequest("POST", h.http.URL+"/members/1/complete", nil)
	req.Header.Set("HX-Request", "true")
	resp, err := actor.Do(req)
	require.NoError(t, err)
	assert.Contains(t, body(t, resp), "Proceso de Rosa completado")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg websocket.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, websocket.TypeMembers, msg.Type)
	assert.Equal(t, model.ActionCompleted, msg.Action)
	assert.Equal(t, int64(1), msg.ID)
	assert.Equal(t, "Rosa", msg.Extra["name"])
	assert.Equal(t, "Luis", msg.Extra["founder"])
}

func TestUpstreamTimeoutReachesBrowser(t *testing.T) {
	const upstream = 300 * time.Millisecond
	h := newHarnessWith(t, nil, func(cfg *config.Config) { cfg.Directus.Timeout = upstream })
	h.api.Hang("list")

	ts := httptest.NewUnstartedServer(nil)
	ts.Config = h.srv.HTTPServer("")
	ts.Start()
	t.Cleanup(ts.Close)
	assert.Greater(t, ts.Config.WriteTimeout, 2*upstream)

	c := h.client(t)
	start := time.Now()
	resp, err := c.PostForm(ts.URL+"/login", url.Values{
		"email":    {directustest.Email},
		"password": {directustest.Password},
	})
	require.NoError(t, err, "the browser must get a response, not a dropped connection")
	page := body(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Tiempo de espera agotado")
	assert.Less(t, time.Since(start), ts.Config.WriteTimeout)
	for _, ck := range resp.Cookies() {
		assert.NotEqual(t, "referidos_session", ck.Name)
	}
}

func TestWriteTimeoutCoversTwoUpstreamCalls(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 25*time.Second, WriteTimeout(cfg))

	cfg.Directus.Timeout = 2 * time.Second
	assert.Equal(t, 9*time.Second, WriteTimeout(cfg))
}
