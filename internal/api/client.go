// Package api is the admin API client used by the dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"resty.dev/v3"

	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/pkg/logger"
)

// ErrUnauthorized is wrapped by errors for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// RequestIDHeader tags every request for server-side correlation.
const RequestIDHeader = "X-Request-Id"

// Error is a failed admin API call.
type Error struct {
	Status  int
	Method  string
	Path    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// ContextProvider supplies the endpoint and session for each call.
type ContextProvider interface {
	AdminContext() (session.AdminContext, error)
}

// Options configures a Client.
type Options struct {
	HTTP    *resty.Client
	Session ContextProvider

	// OnUnauthorized runs after a 401 response.
	OnUnauthorized func()
	// OnError runs for every *Error returned.
	OnError func(error)
}

// Client calls the admin API.
type Client struct {
	http           *resty.Client
	session        ContextProvider
	onUnauthorized func()
	onError        func(error)
}

// New returns a client. A nil HTTP client gets a fresh resty client.
func New(opts Options) *Client {
	c := &Client{
		http:           opts.HTTP,
		session:        opts.Session,
		onUnauthorized: opts.OnUnauthorized,
		onError:        opts.OnError,
	}
	if c.http == nil {
		c.http = resty.New()
	}
	return c
}

func errorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "Request failed"
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return trimmed
	}
	for _, m := range []string{payload.Error, payload.Message, payload.Detail} {
		if s := strings.TrimSpace(m); s != "" {
			return s
		}
	}
	return "Request failed"
}

func (c *Client) fail(err *Error) error {
	if c.onError != nil {
		c.onError(err)
	}
	return err
}

// Do sends method path (relative to the admin endpoint) with an optional
// JSON body and returns the raw response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if c.session == nil {
		return nil, &Error{Method: method, Path: path, Message: "API client is not configured"}
	}
	adminCtx, err := c.session.AdminContext()
	if err != nil {
		return nil, &Error{Method: method, Path: path, Message: err.Error(), cause: err}
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	res, err := req.Execute(method, adminCtx.Endpoint+path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	raw := res.Bytes()

	if res.StatusCode() == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, c.fail(&Error{
			Status:  res.StatusCode(),
			Method:  method,
			Path:    path,
			Message: "Unauthorized",
			cause:   ErrUnauthorized,
		})
	}
	if !res.IsSuccess() {
		return nil, c.fail(&Error{
			Status:  res.StatusCode(),
			Method:  method,
			Path:    path,
			Message: errorMessage(raw),
		})
	}
	logger.Tracef("api %s %s -> %d (%d bytes)", method, path, res.StatusCode(), len(raw))
	return json.RawMessage(append([]byte(nil), raw...)), nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Analytics fetches /admin/analytics.
func (c *Client) Analytics(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/admin/analytics")
}

// Events fetches the events of the last hours.
func (c *Client) Events(ctx context.Context, hours int) (json.RawMessage, error) {
	return c.get(ctx, "/admin/events?hours="+strconv.Itoa(hours))
}

// Bans fetches the ban list.
func (c *Client) Bans(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/admin/ban")
}

// Maze fetches maze statistics.
func (c *Client) Maze(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/admin/maze")
}

// Config fetches the running configuration.
func (c *Client) Config(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/admin/config")
}

// Monitoring fetches the aggregated monitoring view.
func (c *Client) Monitoring(ctx context.Context, hours, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(hours))
	q.Set("limit", strconv.Itoa(limit))
	return c.get(ctx, "/admin/monitoring?"+q.Encode())
}

// Ban bans ip for duration seconds.
func (c *Client) Ban(ctx context.Context, ip string, durationSeconds int, reason string) error {
	if reason == "" {
		reason = "manual_ban"
	}
	_, err := c.Do(ctx, http.MethodPost, "/admin/ban", map[string]any{
		"ip":       ip,
		"reason":   reason,
		"duration": durationSeconds,
	})
	return err
}

// Unban lifts the ban on ip.
func (c *Client) Unban(ctx context.Context, ip string) error {
	_, err := c.Do(ctx, http.MethodPost, "/admin/unban?ip="+url.QueryEscape(ip), nil)
	return err
}
