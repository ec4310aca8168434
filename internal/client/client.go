// Package client talks to an alertboard server. Besides the REST calls it
// implements feed.Collection over the SSE stream, so an alert screen can run
// against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/users"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

const apiPrefix = "/api/v1"

// APIError is an error envelope returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for REST calls. Streams use a copy
// without a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	sc := *c.http
	sc.Timeout = 0
	c.stream = &sc
	return c, nil
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + apiPrefix + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends a request and decodes the "data" member of the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	envelope.Error = apiErr
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Login exchanges credentials for a token pair and keeps the access token.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, auth.LoginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// Refresh rotates the refresh token and keeps the new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, auth.RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// Logout revokes refreshToken and forgets the access token.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, auth.RefreshRequest{RefreshToken: refreshToken}, nil)
	c.SetToken("")
	return err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*users.UserResponse, error) {
	var out users.UserResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Principal returns the authenticated user as a principal.
func (c *Client) Principal(ctx context.Context) (session.Principal, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return session.Principal{}, err
	}
	return session.Principal{
		UserID:   me.ID,
		Username: me.Username,
		Email:    me.Email,
		Role:     models.Role(me.Role),
	}, nil
}

// ListAlerts returns the current feed, newest first. limit 0 means all.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []*models.Alert
	if err := c.do(ctx, http.MethodGet, "/alerts", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Append posts a new alert. The server attributes it to the authenticated
// user; alert.Email is not sent.
func (c *Client) Append(ctx context.Context, collection string, alert feed.NewAlert) error {
	if collection != feed.CollectionAlerts {
		return fmt.Errorf("%w: %q", feed.ErrUnknownCollection, collection)
	}
	return c.do(ctx, http.MethodPost, "/alerts", nil, map[string]string{"text": alert.Text}, nil)
}

// DeleteAlert removes an alert. Requires an admin token.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", feed.ErrNotFound, id)
	}
	return err
}

var _ feed.Collection = (*Client)(nil)
