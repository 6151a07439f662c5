// Package session owns the admin session: the controller that talks to the
// session endpoint and the runtime that mirrors its state into the store.
package session

import (
	"context"
)

// CSRFHeader carries the session's CSRF token on write requests.
const CSRFHeader = "X-Shuma-CSRF"

// State is a snapshot of the admin session. CSRFToken is empty unless
// Authenticated is true.
type State struct {
	Authenticated bool
	CSRFToken     string
}

// Controller restores and holds the admin session.
type Controller interface {
	State() State
	RestoreAdminSession(ctx context.Context) bool
	Clear()
}

func newState(authenticated bool, csrfToken string) State {
	if !authenticated {
		return State{}
	}
	return State{Authenticated: true, CSRFToken: csrfToken}
}
