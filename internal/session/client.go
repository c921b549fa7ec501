// Package session implements the consumer side of the token protocol: it
// keeps the current token pair, attaches the access token to outgoing calls
// and recovers from an expired access token with one refresh and one retry.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionExpired is returned when the refresh after a 401 failed.
	// Stored tokens are cleared before it is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned by operations that need a session when none is held.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Tokens is the pair held by the client.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// User is the subset of the account returned by login and refresh.
type User struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// AuthResponse is the body of the login and refresh endpoints.
type AuthResponse struct {
	Tokens
	User User `json:"user"`
}

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
}

// StatusError is returned when the server answers an auth call with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRefresher replaces the default HTTP refresher.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnSessionExpired registers a callback run once each time the session is lost.
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	refresher Refresher
	onExpired func()
	logger    *zap.Logger

	mu     sync.RWMutex
	tokens Tokens
	user   User

	refreshes singleflight.Group
}

// New returns a client talking to the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.refresher == nil {
		c.refresher = NewHTTPRefresher(c.baseURL, c.http)
	}
	return c
}

// Tokens returns the current pair.
func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// User returns the account of the current session.
func (c *Client) User() User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// SetTokens installs a pair, e.g. one restored from disk.
func (c *Client) SetTokens(tokens Tokens) {
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
}

// Login authenticates with email and password and stores the returned pair.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out AuthResponse
	if err := postJSON(ctx, c.http, c.baseURL+"/auth/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	c.store(&out)
	return &out.User, nil
}

// Logout revokes the session server side and clears local state. Local
// state is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.Tokens().AccessToken == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	c.clear()
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		return decodeStatusError(resp)
	}
	return nil
}

// Do sends req with the current access token. On a 401 it refreshes once
// and retries once; the retried response is returned whatever its status.
// Requests sent without a session are never retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	access := c.Tokens().AccessToken
	resp, err := c.send(req, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || access == "" {
		return resp, nil
	}
	drain(resp)

	next, err := c.refresh(req.Context(), access)
	if err != nil {
		return nil, err
	}
	return c.send(req, next)
}

// refresh returns a fresh access token. Concurrent callers share a single
// refresh; a caller whose token was already rotated by someone else gets the
// current token without refreshing again.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	v, err, shared := c.refreshes.Do("refresh", func() (any, error) {
		current := c.Tokens()
		if current.AccessToken != "" && current.AccessToken != stale {
			return current.AccessToken, nil
		}
		if current == (Tokens{}) {
			return nil, ErrSessionExpired
		}
		if current.RefreshToken == "" {
			c.expire(ErrNotAuthenticated)
			return nil, ErrSessionExpired
		}

		out, err := c.refresher.Refresh(context.WithoutCancel(ctx), current.RefreshToken)
		if err != nil {
			c.expire(err)
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		c.store(out)
		c.logger.Debug("session refreshed", zap.String("user_id", out.User.ID))
		return out.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug("joined in-flight refresh")
	}
	return v.(string), nil
}

func (c *Client) send(req *http.Request, access string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}
	if access != "" {
		attempt.Header.Set("Authorization", "Bearer "+access)
	} else {
		attempt.Header.Del("Authorization")
	}
	return c.http.Do(attempt)
}

func (c *Client) store(out *AuthResponse) {
	c.mu.Lock()
	c.tokens = out.Tokens
	c.user = out.User
	c.mu.Unlock()
}

func (c *Client) clear() {
	c.mu.Lock()
	c.tokens = Tokens{}
	c.user = User{}
	c.mu.Unlock()
}

func (c *Client) expire(cause error) {
	c.clear()
	c.logger.Info("session expired", zap.Error(cause))
	if c.onExpired != nil {
		c.onExpired()
	}
}

// HTTPRefresher calls POST /auth/refresh.
type HTTPRefresher struct {
	url  string
	http *http.Client
}

// NewHTTPRefresher builds a refresher for the API at baseURL.
func NewHTTPRefresher(baseURL string, hc *http.Client) *HTTPRefresher {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPRefresher{url: strings.TrimRight(baseURL, "/") + "/auth/refresh", http: hc}
}

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	if err := postJSON(ctx, r.http, r.url, map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, errors.New("refresh response is missing tokens")
	}
	return &out, nil
}

func postJSON(ctx context.Context, hc *http.Client, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeStatusError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &StatusError{StatusCode: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
}

// bufferBody makes the body replayable for the retry.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
