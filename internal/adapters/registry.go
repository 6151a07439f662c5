// Package adapters is the swap point between UI call sites and whichever
// tab and session runtimes are currently installed.
//
// A Registry is created by the composition root and handed to every
// consumer. Until Configure is called, and again after Clear, every call
// degrades to a safe default.
package adapters

import (
	"context"
	"sync"

	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// TabRuntime is the tab half of an installed runtime.
type TabRuntime interface {
	SetActiveTab(tab, reason string) string
	ActiveTab() string
	RefreshTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error
}

// SessionRuntime is the session half of an installed runtime.
type SessionRuntime interface {
	State() session.State
	RestoreSession(ctx context.Context) bool
	LogoutSession(ctx context.Context)
}

// Config is installed by Configure. Nil runtimes are treated as absent. A
// nil Normalize or empty DefaultTab keeps the previous value.
type Config struct {
	Tabs       TabRuntime
	Session    SessionRuntime
	Normalize  func(string) string
	DefaultTab string
}

// Registry holds the installed runtimes.
type Registry struct {
	mu         sync.RWMutex
	tabs       TabRuntime
	session    SessionRuntime
	normalize  func(string) string
	defaultTab string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{defaultTab: tabs.Default}
	r.normalize = func(v string) string {
		if v == "" {
			return r.DefaultTab()
		}
		return v
	}
	return r
}

// Configure installs cfg.
func (r *Registry) Configure(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = cfg.Tabs
	r.session = cfg.Session
	if cfg.Normalize != nil {
		r.normalize = cfg.Normalize
	}
	if cfg.DefaultTab != "" {
		r.defaultTab = cfg.DefaultTab
	}
}

// Clear removes the installed runtimes. The normalizer and default tab are
// kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = nil
	r.session = nil
}

// Configured reports whether any runtime is installed.
func (r *Registry) Configured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tabs != nil || r.session != nil
}

// DefaultTab returns the configured default tab.
func (r *Registry) DefaultTab() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultTab
}

func (r *Registry) snapshot() (TabRuntime, SessionRuntime) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tabs, r.session
}

func (r *Registry) resolveTab(tab string) (out string) {
	r.mu.RLock()
	normalize := r.normalize
	def := r.defaultTab
	r.mu.RUnlock()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Warnf("tab normalizer panicked on %q: %v", tab, rec)
			out = def
		}
	}()
	return normalize(tab)
}

// SetActiveTab forwards to the tab runtime, or normalizes locally.
func (r *Registry) SetActiveTab(tab, reason string) string {
	if reason == "" {
		reason = tabs.ReasonExternal
	}
	t, _ := r.snapshot()
	if t == nil {
		return r.resolveTab(tab)
	}
	return t.SetActiveTab(tab, reason)
}

// ActiveTab forwards to the tab runtime, or returns the default tab.
func (r *Registry) ActiveTab() string {
	t, _ := r.snapshot()
	if t == nil {
		return r.DefaultTab()
	}
	return t.ActiveTab()
}

// RefreshTab forwards to the tab runtime; without one it does nothing.
func (r *Registry) RefreshTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
	if reason == "" {
		reason = tabs.ReasonManual
	}
	t, _ := r.snapshot()
	if t == nil {
		return nil
	}
	return t.RefreshTab(ctx, tab, reason, opts)
}

// RestoreSession forwards to the session runtime, or returns false.
func (r *Registry) RestoreSession(ctx context.Context) bool {
	_, s := r.snapshot()
	if s == nil {
		return false
	}
	return s.RestoreSession(ctx)
}

// SessionState forwards to the session runtime, or returns the
// unauthenticated state.
func (r *Registry) SessionState() session.State {
	_, s := r.snapshot()
	if s == nil {
		return session.State{}
	}
	return s.State()
}

// LogoutSession forwards to the session runtime; without one it does
// nothing.
func (r *Registry) LogoutSession(ctx context.Context) {
	_, s := r.snapshot()
	if s == nil {
		return
	}
	s.LogoutSession(ctx)
}
