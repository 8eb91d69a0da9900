// Package directus is the client for the remote collection API that stores
// members. It never retries and never refreshes tokens; callers surface
// failures and the operator acts again.
package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/metrics"
	"github.com/dukerupert/referidos/internal/model"
)

// Operation names used in errors, logs and metrics.
const (
	OpLogin  = "login"
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpPing   = "ping"
	OpFields = "fields"
)

// LoginResult is a successful authentication.
type LoginResult struct {
	Token string
	// Expires is the token lifetime reported by the server; zero when absent.
	Expires time.Duration
	User    *model.User
}

// Client talks to one collection on one server. It holds no token; every
// authenticated call takes the caller's bearer token.
type Client struct {
	baseURL    string
	collection string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a client from the directus configuration section.
func New(cfg config.DirectusConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		timeout:    timeout,
		httpClient: &http.Client{},
		metrics:    m,
		logger:     logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Data struct {
		AccessToken string      `json:"access_token"`
		Expires     int64       `json:"expires"`
		User        *model.User `json:"user"`
	} `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshal login: %w", err)
	}

	var lr loginResponse
	err = c.do(ctx, OpLogin, http.MethodPost, "/auth/login", "", body, &lr)
	if err != nil {
		return nil, err
	}
	if lr.Data.AccessToken == "" {
		return nil, &Error{Kind: KindCredentials, Op: OpLogin, Message: msgCredentials}
	}

	return &LoginResult{
		Token:   lr.Data.AccessToken,
		Expires: time.Duration(lr.Data.Expires) * time.Millisecond,
		User:    lr.Data.User,
	}, nil
}

// ListMembers fetches the whole collection.
func (c *Client) ListMembers(ctx context.Context, token string) ([]model.Member, error) {
	var resp struct {
		Data []model.Member `json:"data"`
	}
	if err := c.do(ctx, OpList, http.MethodGet, c.itemsPath()+"?limit=-1", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []model.Member{}, nil
	}
	return resp.Data, nil
}

// CreateMember creates a record and returns it as persisted.
func (c *Client) CreateMember(ctx context.Context, token string, fields model.MemberFields) (*model.Member, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal member: %w", err)
	}
	var resp struct {
		Data model.Member `json:"data"`
	}
	if err := c.do(ctx, OpCreate, http.MethodPost, c.itemsPath(), token, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateMember patches the fields set in fields and returns the persisted record.
func (c *Client) UpdateMember(ctx context.Context, token string, id int64, fields model.MemberFields) (*model.Member, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal member: %w", err)
	}
	var resp struct {
		Data model.Member `json:"data"`
	}
	path := c.itemsPath() + "/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, OpUpdate, http.MethodPatch, path, token, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, OpPing, http.MethodGet, "/server/ping", "", nil, nil)
}

// Fields returns the sorted keys of the first record in the collection, or
// nil when the collection is empty.
func (c *Client) Fields(ctx context.Context, token string) ([]string, error) {
	var resp struct {
		Data []map[string]json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, OpFields, http.MethodGet, c.itemsPath()+"?limit=1", token, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(resp.Data[0]))
	for k := range resp.Data[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// MissingFields returns the required record keys absent from keys.
func MissingFields(keys []string) []string {
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k] = true
	}
	missing := []string{}
	for _, f := range model.RequiredWireFields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// TokenExpiry reads the exp claim of a JWT access token without verifying
// its signature. ok is false for opaque tokens or tokens without exp.
func TokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c *Client) itemsPath() string {
	return "/items/" + url.PathEscape(c.collection)
}

// do performs one request under its own deadline and decodes the data
// envelope into out. All failures come back as *Error.
func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, token, body, out)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		c.logger.Warn("directus request failed",
			"op", op,
			"method", method,
			"path", path,
			"duration", elapsed,
			"error", err,
		)
	} else {
		c.logger.Debug("directus request",
			"op", op,
			"method", method,
			"path", path,
			"duration", elapsed,
		)
	}
	c.metrics.ObserveUpstream(op, outcome, elapsed)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Message: msgNetwork, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(op, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyTransport(ctx, op, err)
		}
		return &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: failureMessage(op), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyTransport(ctx context.Context, op string, err error) error {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: KindTimeout, Op: op, Message: timeoutMessage(op), Err: err}
	}
	msg := msgNetwork
	if op == OpCreate || op == OpUpdate {
		msg = failureMessage(op)
	}
	return &Error{Kind: KindNetwork, Op: op, Message: msg, Err: err}
}

func classifyStatus(op string, resp *http.Response) error {
	var er errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &er)
	remote := ""
	if len(er.Errors) > 0 {
		remote = er.Errors[0].Message
	}

	e := &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: failureMessage(op)}
	switch op {
	case OpLogin:
		if resp.StatusCode < 500 {
			e.Kind = KindCredentials
		}
		if remote != "" {
			e.Message = remote
		}
	case OpList, OpFields:
		if remote != "" {
			e.Message = remote
		}
	}
	if remote != "" {
		e.Err = errors.New(remote)
	}
	return e
}

func timeoutMessage(op string) string {
	switch op {
	case OpList, OpFields:
		return msgListTimeout
	case OpCreate, OpUpdate:
		return failureMessage(op)
	default:
		return msgLoginTimeout
	}
}

func failureMessage(op string) string {
	switch op {
	case OpLogin:
		return msgCredentials
	case OpList, OpFields:
		return msgListFailed
	case OpCreate:
		return msgCreateFailed
	case OpUpdate:
		return msgUpdateFailed
	case OpPing:
		return msgPingFailed
	default:
		return msgUnexpected
	}
}
