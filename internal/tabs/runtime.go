package tabs

import (
	"context"
	"sync"

	"github.com/shuma/dashboard/internal/effects"
)

// Reasons passed through activation and refresh so downstream consumers can
// tell user input from navigation and polling.
const (
	ReasonExternal     = "external"
	ReasonManual       = "manual"
	ReasonAutoRefresh  = "auto-refresh"
	ReasonClick        = "click"
	ReasonKeyboard     = "keyboard"
	ReasonHash         = "hash"
	ReasonInitialHash  = "initial-hash"
	ReasonProgrammatic = "programmatic"
)

// RefreshOptions are forwarded untouched to the data refresher.
type RefreshOptions struct {
	// Force bypasses cached snapshots.
	Force bool
}

// RefreshFunc loads data for one tab.
type RefreshFunc func(ctx context.Context, tab, reason string, opts RefreshOptions) error

// Store is the slice of the state store the tab runtime writes to.
type Store interface {
	SetActiveTab(tab string)
	ActiveTab() string
}

// Coordinator owns tab activation when the legacy pipeline is in charge.
type Coordinator interface {
	Activate(tab, reason string)
	ActiveTab() string
}

// MountOptions describes how the runtime was mounted.
type MountOptions struct {
	// ExternalTabPipeline means a renderer drives tab activation itself and
	// the coordinator must not be asked to activate tabs.
	ExternalTabPipeline bool
}

// RuntimeOptions configures a Runtime. Nil collaborators are treated as
// absent.
type RuntimeOptions struct {
	Normalize  func(string) string
	DefaultTab string

	Page                 *effects.Page
	Store                Store
	Coordinator          Coordinator
	MountOptions         func() MountOptions
	RefreshActionButtons func()
	RefreshForTab        RefreshFunc
}

// Runtime owns the active tab and drives per-tab refresh.
type Runtime struct {
	normalize  func(string) string
	defaultTab string
	page       *effects.Page
	store      Store

	mountOptions         func() MountOptions
	refreshActionButtons func()
	refreshForTab        RefreshFunc

	mu          sync.RWMutex
	coordinator Coordinator
}

// NewRuntime builds a tab runtime.
func NewRuntime(opts RuntimeOptions) *Runtime {
	r := &Runtime{
		normalize:            opts.Normalize,
		defaultTab:           opts.DefaultTab,
		page:                 opts.Page,
		store:                opts.Store,
		coordinator:          opts.Coordinator,
		mountOptions:         opts.MountOptions,
		refreshActionButtons: opts.RefreshActionButtons,
		refreshForTab:        opts.RefreshForTab,
	}
	if r.normalize == nil {
		r.normalize = Normalize
	}
	if r.defaultTab == "" {
		r.defaultTab = Default
	}
	if r.mountOptions == nil {
		r.mountOptions = func() MountOptions { return MountOptions{} }
	}
	if r.refreshActionButtons == nil {
		r.refreshActionButtons = func() {}
	}
	if r.refreshForTab == nil {
		r.refreshForTab = func(context.Context, string, string, RefreshOptions) error { return nil }
	}
	return r
}

// SetCoordinator attaches or detaches (nil) the tab coordinator.
func (r *Runtime) SetCoordinator(c Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinator = c
}

func (r *Runtime) currentCoordinator() Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinator
}

// SetActiveTab normalizes tab, records it locally and, unless an external
// pipeline is in control, asks the coordinator to activate it. The local
// writes complete before SetActiveTab returns.
func (r *Runtime) SetActiveTab(tab, reason string) string {
	if reason == "" {
		reason = ReasonExternal
	}
	normalized := r.normalize(tab)
	if r.store != nil {
		r.store.SetActiveTab(normalized)
	}
	if r.page != nil {
		r.page.SetDataset(effects.DatasetActiveTab, normalized)
	}
	r.refreshActionButtons()

	if !r.mountOptions().ExternalTabPipeline {
		if c := r.currentCoordinator(); c != nil {
			c.Activate(normalized, reason)
		}
	}
	return normalized
}

// ActiveTab prefers the coordinator, then the store, then the default tab.
func (r *Runtime) ActiveTab() string {
	if c := r.currentCoordinator(); c != nil {
		return c.ActiveTab()
	}
	if r.store != nil {
		return r.store.ActiveTab()
	}
	return r.defaultTab
}

// RefreshTab activates tab and loads its data. Reason and options are
// forwarded unchanged.
func (r *Runtime) RefreshTab(ctx context.Context, tab, reason string, opts RefreshOptions) error {
	if reason == "" {
		reason = ReasonManual
	}
	normalized := r.SetActiveTab(tab, reason)
	return r.refreshForTab(ctx, normalized, reason, opts)
}
