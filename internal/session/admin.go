package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"resty.dev/v3"

	"github.com/shuma/dashboard/pkg/logger"
)

var (
	// ErrNoEndpoint means the admin API endpoint could not be resolved.
	ErrNoEndpoint = errors.New("unable to resolve admin API endpoint from the current page origin")
	// ErrLoginRequired means there is no authenticated session.
	ErrLoginRequired = errors.New("login required, go to /dashboard/login.html")
)

// AdminContext is what API calls need from the session.
type AdminContext struct {
	Endpoint  string
	CSRFToken string
}

// AdminSessionOptions configures an AdminSession.
type AdminSessionOptions struct {
	// HTTP is used for session restores. Attach replaces it.
	HTTP *resty.Client
	// ResolveEndpoint returns the admin API base URL, or "".
	ResolveEndpoint func() string
	// RefreshActionButtons runs after every state change.
	RefreshActionButtons func()
}

// AdminSession is the concrete session controller backed by
// GET /admin/session.
type AdminSession struct {
	resolveEndpoint      func() string
	refreshActionButtons func()

	mu     sync.RWMutex
	client *resty.Client
	state  State
}

var _ Controller = (*AdminSession)(nil)

// NewAdminSession returns an unauthenticated session.
func NewAdminSession(opts AdminSessionOptions) *AdminSession {
	a := &AdminSession{
		client:               opts.HTTP,
		resolveEndpoint:      opts.ResolveEndpoint,
		refreshActionButtons: opts.RefreshActionButtons,
	}
	if a.resolveEndpoint == nil {
		a.resolveEndpoint = func() string { return "" }
	}
	if a.refreshActionButtons == nil {
		a.refreshActionButtons = func() {}
	}
	return a
}

// Attach routes client through the session transport and uses it for
// restores. Attaching the same client again replaces the transport of the
// session it was previously attached to.
func (a *AdminSession) Attach(client *resty.Client) {
	if client == nil {
		return
	}
	client.SetTransport(a.Transport(client.Client().Transport))
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
}

func (a *AdminSession) set(authenticated bool, csrfToken string) {
	a.mu.Lock()
	a.state = newState(authenticated, csrfToken)
	a.mu.Unlock()
	a.refreshActionButtons()
}

// State implements Controller.
func (a *AdminSession) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Clear drops the session locally.
func (a *AdminSession) Clear() {
	a.set(false, "")
}

// HasValidAPIContext reports whether authenticated API calls can be made.
func (a *AdminSession) HasValidAPIContext() bool {
	return a.State().Authenticated
}

// AdminContext returns the endpoint and token for an API call.
func (a *AdminSession) AdminContext() (AdminContext, error) {
	defer a.refreshActionButtons()

	endpoint := a.resolveEndpoint()
	if endpoint == "" {
		return AdminContext{}, ErrNoEndpoint
	}
	st := a.State()
	if !st.Authenticated {
		return AdminContext{}, ErrLoginRequired
	}
	return AdminContext{Endpoint: endpoint, CSRFToken: st.CSRFToken}, nil
}

type sessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	Method        string `json:"method"`
	CSRFToken     string `json:"csrf_token"`
}

// RestoreAdminSession asks the server whether a cookie session exists. Any
// failure leaves the session cleared.
func (a *AdminSession) RestoreAdminSession(ctx context.Context) bool {
	endpoint := a.resolveEndpoint()
	if endpoint == "" {
		a.set(false, "")
		return false
	}

	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		a.set(false, "")
		return false
	}

	res, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(endpoint + "/admin/session")
	if err != nil {
		logger.Debugf("session restore failed: %v", err)
		a.set(false, "")
		return false
	}
	if !res.IsSuccess() {
		logger.Debugf("session restore: status %d", res.StatusCode())
		a.set(false, "")
		return false
	}

	var payload sessionPayload
	if err := json.Unmarshal(res.Bytes(), &payload); err != nil {
		logger.Debugf("session restore: decode: %v", err)
		a.set(false, "")
		return false
	}
	if payload.Authenticated && payload.Method == "session" {
		a.set(true, payload.CSRFToken)
		return true
	}
	a.set(false, "")
	return false
}

// Transport decorates admin API requests: it adds the CSRF header to write
// requests while a session is held and strips empty bearer credentials.
func (a *AdminSession) Transport(base http.RoundTripper) http.RoundTripper {
	if prev, ok := base.(*Transport); ok {
		base = prev.base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{session: a, base: base}
}

// Transport is the RoundTripper returned by AdminSession.Transport.
type Transport struct {
	session *AdminSession
	base    http.RoundTripper
}

func isWriteMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isEmptyBearer(value string) bool {
	v := strings.TrimSpace(value)
	if len(v) < len("Bearer") {
		return false
	}
	return strings.EqualFold(v[:len("Bearer")], "Bearer") && strings.TrimSpace(v[len("Bearer"):]) == ""
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.Contains(req.URL.Path, "/admin/") {
		return t.base.RoundTrip(req)
	}

	stripAuth := isEmptyBearer(req.Header.Get("Authorization"))
	st := t.session.State()
	addCSRF := st.Authenticated && st.CSRFToken != "" && isWriteMethod(req.Method) &&
		req.Header.Get(CSRFHeader) == ""
	if !stripAuth && !addCSRF {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	if stripAuth {
		clone.Header.Del("Authorization")
	}
	if addCSRF {
		clone.Header.Set(CSRFHeader, st.CSRFToken)
	}
	return t.base.RoundTrip(clone)
}
