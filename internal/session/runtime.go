package session

import (
	"context"
	"net/http"

	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/pkg/logger"
)

// MessageKind classifies a user-visible message.
type MessageKind string

const (
	MessageInfo    MessageKind = "info"
	MessageSuccess MessageKind = "success"
	MessageWarning MessageKind = "warning"
	MessageError   MessageKind = "error"
)

// MessageSink shows a message on the dashboard's message surface.
type MessageSink func(kind MessageKind, text string)

// StoreMirror receives a copy of the session after every restore/logout.
type StoreMirror interface {
	SetSession(authenticated bool, csrfToken string)
}

// RuntimeOptions configures a Runtime. Every collaborator is optional.
type RuntimeOptions struct {
	Controller           Controller
	Store                StoreMirror
	Effects              *effects.Effects
	ResolveEndpoint      func() string
	RefreshActionButtons func()
	Messages             MessageSink
	// AfterLogout runs once local state has been cleared.
	AfterLogout func()
}

// Runtime exposes the restore and logout protocols to the dashboard.
type Runtime struct {
	controller           Controller
	store                StoreMirror
	effects              *effects.Effects
	resolveEndpoint      func() string
	refreshActionButtons func()
	messages             MessageSink
	afterLogout          func()
}

// NewRuntime builds a session runtime.
func NewRuntime(opts RuntimeOptions) *Runtime {
	r := &Runtime{
		controller:           opts.Controller,
		store:                opts.Store,
		effects:              opts.Effects,
		resolveEndpoint:      opts.ResolveEndpoint,
		refreshActionButtons: opts.RefreshActionButtons,
		messages:             opts.Messages,
		afterLogout:          opts.AfterLogout,
	}
	if r.resolveEndpoint == nil {
		r.resolveEndpoint = func() string { return "" }
	}
	if r.refreshActionButtons == nil {
		r.refreshActionButtons = func() {}
	}
	if r.messages == nil {
		r.messages = func(MessageKind, string) {}
	}
	if r.afterLogout == nil {
		r.afterLogout = func() {}
	}
	return r
}

// State returns the controller's session, or the unauthenticated state when
// no controller is attached.
func (r *Runtime) State() State {
	if r.controller == nil {
		return State{}
	}
	st := r.controller.State()
	return newState(st.Authenticated, st.CSRFToken)
}

// RestoreSession reconciles the session with the server and mirrors it into
// the store.
func (r *Runtime) RestoreSession(ctx context.Context) bool {
	if r.controller == nil {
		return false
	}
	authenticated := r.controller.RestoreAdminSession(ctx)
	if r.store != nil {
		st := r.State()
		r.store.SetSession(st.Authenticated, st.CSRFToken)
	}
	r.refreshActionButtons()
	return authenticated
}

// LogoutSession revokes the session server-side on a best-effort basis and
// always ends with the local session cleared.
func (r *Runtime) LogoutSession(ctx context.Context) {
	endpoint := r.resolveEndpoint()
	if endpoint == "" || r.effects == nil || r.effects.Request == nil {
		logger.Debugf("logout: no endpoint or request effect, clearing locally")
		r.clearLocal()
		r.afterLogout()
		return
	}

	header := http.Header{}
	if token := r.State().CSRFToken; token != "" {
		header.Set(CSRFHeader, token)
	}
	res, err := r.effects.Request(ctx, effects.Request{
		Method: http.MethodPost,
		URL:    endpoint + "/admin/logout",
		Header: header,
	})
	switch {
	case err != nil:
		logger.Warnf("logout request failed: %v", err)
	case !res.OK():
		logger.Warnf("logout request: status %d", res.StatusCode)
	}

	if r.controller != nil {
		r.controller.RestoreAdminSession(ctx)
	}
	r.clearLocal()
	r.messages(MessageSuccess, "Logged out")
	r.refreshActionButtons()
	r.afterLogout()
}

func (r *Runtime) clearLocal() {
	if r.controller != nil {
		r.controller.Clear()
	}
	if r.store != nil {
		r.store.SetSession(false, "")
	}
}
