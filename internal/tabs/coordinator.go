package tabs

import (
	"context"
	"sync"

	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/pkg/logger"
)

// Controller holds the lifecycle hooks of one tab. Every hook is optional.
type Controller struct {
	Init    func(tab string)
	Mount   func(tab, prevTab, reason string)
	Unmount func(tab, nextTab, reason string)
	Refresh func(ctx context.Context, tab, reason string) error
}

// CoordinatorOptions configures a TabCoordinator.
type CoordinatorOptions struct {
	Effects     *effects.Effects
	Controllers map[string]Controller

	// OnActiveTabChange runs after a tab has been mounted.
	OnActiveTabChange func(next, prev, reason string)
}

// TabCoordinator keeps the active tab in sync with the URL fragment and runs
// per-tab lifecycle hooks. It is the source of truth for the active tab in the
// legacy pipeline.
type TabCoordinator struct {
	effects     *effects.Effects
	controllers map[string]Controller
	onChange    func(next, prev, reason string)

	mu          sync.Mutex
	active      string
	initialized bool
	mounted     bool
	unbindHash  func()
}

// NewCoordinator builds a coordinator positioned on the default tab.
func NewCoordinator(opts CoordinatorOptions) *TabCoordinator {
	controllers := make(map[string]Controller, len(All))
	for _, tab := range All {
		controllers[tab] = opts.Controllers[tab]
	}
	return &TabCoordinator{
		effects:     opts.Effects,
		controllers: controllers,
		onChange:    opts.OnActiveTabChange,
		active:      Default,
	}
}

var _ Coordinator = (*TabCoordinator)(nil)

// Normalize exposes the coordinator's tab normalization.
func (c *TabCoordinator) Normalize(raw string) string { return Normalize(raw) }

// Init runs controller init hooks, binds hashchange and activates the tab
// named by the current fragment. Init is idempotent.
func (c *TabCoordinator) Init() {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	for _, tab := range All {
		if hook := c.controllers[tab].Init; hook != nil {
			hook(tab)
		}
	}

	var unbind func()
	if c.effects != nil {
		unbind = c.effects.OnHashChange(c.syncFromHash)
	}

	c.mu.Lock()
	c.unbindHash = unbind
	c.initialized = true
	c.mu.Unlock()

	c.syncFromHash()
}

// Destroy unbinds hashchange. The coordinator can be initialized again.
func (c *TabCoordinator) Destroy() {
	c.mu.Lock()
	unbind := c.unbindHash
	c.unbindHash = nil
	c.initialized = false
	c.mounted = false
	c.mu.Unlock()

	if unbind != nil {
		unbind()
	}
}

func (c *TabCoordinator) syncFromHash() {
	if c.effects == nil {
		return
	}
	raw := c.effects.ReadHashTab()
	requested := Normalize(raw)
	if raw != requested {
		c.effects.WriteHashTab(requested, effects.WriteHashOptions{Replace: true})
	}
	c.setActiveTab(requested, ReasonHash)
}

func (c *TabCoordinator) setActiveTab(tab, reason string) {
	next := Normalize(tab)

	c.mu.Lock()
	prev := c.active
	// The first activation after Init always mounts, even on the default tab.
	wasMounted := c.mounted
	if wasMounted && prev == next {
		c.mu.Unlock()
		return
	}
	c.active = next
	c.mounted = true
	c.mu.Unlock()

	if wasMounted {
		if hook := c.controllers[prev].Unmount; hook != nil {
			hook(prev, next, reason)
		}
	}
	if hook := c.controllers[next].Mount; hook != nil {
		hook(next, prev, reason)
	}
	logger.Debugf("tab coordinator: %s -> %s (%s)", prev, next, reason)
	if c.onChange != nil {
		c.onChange(next, prev, reason)
	}
}

// Activate requests tab. When the fragment differs it is rewritten and the
// hashchange listener performs the activation.
func (c *TabCoordinator) Activate(tab, reason string) {
	if reason == "" {
		reason = ReasonProgrammatic
	}
	next := Normalize(tab)

	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()

	if c.effects != nil && c.effects.ReadHashTab() != next {
		c.effects.WriteHashTab(next, effects.WriteHashOptions{})
		if initialized {
			return
		}
	}
	c.setActiveTab(next, reason)
}

// ActiveTab implements Coordinator.
func (c *TabCoordinator) ActiveTab() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// FocusByOffset moves focus offset tabs away from the active one (wrapping)
// and activates it.
func (c *TabCoordinator) FocusByOffset(offset int) {
	n := len(All)
	current := Index(c.ActiveTab())
	if current < 0 {
		current = 0
	}
	next := All[((current+offset)%n+n)%n]
	if c.effects != nil {
		c.effects.FocusTab(next)
	}
	c.Activate(next, ReasonKeyboard)
}

// First activates the first tab.
func (c *TabCoordinator) First() { c.Activate(All[0], ReasonKeyboard) }

// Last activates the last tab.
func (c *TabCoordinator) Last() { c.Activate(All[len(All)-1], ReasonKeyboard) }

// RefreshActive runs the refresh hook of the active tab.
func (c *TabCoordinator) RefreshActive(ctx context.Context, reason string) error {
	if reason == "" {
		reason = ReasonManual
	}
	tab := c.ActiveTab()
	if hook := c.controllers[tab].Refresh; hook != nil {
		return hook(ctx, tab, reason)
	}
	return nil
}
