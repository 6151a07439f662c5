// Package dashboard assembles the dashboard runtime: it implements
// mount.Module by wiring the effects, store, admin session, API client,
// per-tab refresher, tab runtime, session runtime and auto-refresh
// scheduler, and installing them into the adapter registry.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"github.com/shuma/dashboard/internal/adapters"
	"github.com/shuma/dashboard/internal/api"
	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/mount"
	"github.com/shuma/dashboard/internal/refresh"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabdata"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// Refresh reasons issued by the runtime itself.
const (
	ReasonTabMount        = "tab-mount"
	ReasonSessionRestored = "session-restored"
)

// ErrNotMounted is returned by actions issued while no runtime is mounted.
var ErrNotMounted = errors.New("dashboard runtime is not mounted")

// Options configures a Module. Window, Page and Store are owned by the
// caller and survive remounts.
type Options struct {
	// Endpoint is the admin API origin. Empty resolves it from the window.
	Endpoint string
	Window   *effects.Window
	Page     *effects.Page
	Store    *store.Store
	Registry *adapters.Registry

	// HTTP is shared by the API client, session restores and logout. Its
	// transport is wrapped by the session on every mount.
	HTTP *resty.Client

	Intervals tabs.IntervalTable

	SetTimer   effects.SetTimerFunc
	ClearTimer effects.ClearTimerFunc
	Now        func() time.Time

	Messages session.MessageSink
	// AfterLogout runs once the session has been cleared locally.
	AfterLogout func()
}

// Module is the loadable dashboard runtime.
type Module struct {
	opts Options

	mu      sync.Mutex
	current *instance
}

var (
	_ mount.Module          = (*Module)(nil)
	_ mount.ExternalMounter = (*Module)(nil)
	_ mount.Unmounter       = (*Module)(nil)
)

// New returns an unmounted module.
func New(opts Options) *Module {
	if opts.Window == nil {
		origin := opts.Endpoint
		if origin == "" {
			origin = effects.DefaultOrigin
		}
		opts.Window = effects.NewWindow(origin, "")
	}
	if opts.Page == nil {
		opts.Page = effects.NewPage()
	}
	if opts.Store == nil {
		opts.Store = store.New(store.Options{Intervals: opts.Intervals, Now: opts.Now})
	}
	if opts.Registry == nil {
		opts.Registry = adapters.NewRegistry()
	}
	if opts.HTTP == nil {
		opts.HTTP = resty.New()
	}
	if opts.Intervals == nil {
		opts.Intervals = opts.Store.Intervals()
	}
	return &Module{opts: opts}
}

// Loader adapts the module to mount.Loader.
func (m *Module) Loader() mount.Loader {
	return func(context.Context) (mount.Module, error) { return m, nil }
}

// MountApp mounts the runtime with the tab coordinator in charge of the
// active tab.
func (m *Module) MountApp(ctx context.Context, opts mount.Options) error {
	opts.Pipeline = mount.PipelineLegacy
	return m.mount(ctx, opts)
}

// MountExternal mounts the runtime for a renderer that drives tab activation
// itself.
func (m *Module) MountExternal(ctx context.Context, opts mount.Options) error {
	opts.Pipeline = mount.PipelineExternal
	return m.mount(ctx, opts)
}

func (m *Module) mount(ctx context.Context, opts mount.Options) error {
	m.Unmount()

	inst, err := m.build(opts)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = inst
	m.mu.Unlock()

	inst.bootstrap(ctx)
	return nil
}

// Unmount tears the runtime down and clears the registry.
func (m *Module) Unmount() {
	m.mu.Lock()
	inst := m.current
	m.current = nil
	m.mu.Unlock()

	if inst == nil {
		return
	}
	inst.teardown()
	m.opts.Registry.Clear()
}

// Wait blocks until background refreshes issued by tab mounts finish.
func (m *Module) Wait() {
	if inst := m.instance(); inst != nil {
		inst.wg.Wait()
	}
}

func (m *Module) instance() *instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Store returns the shared state store.
func (m *Module) Store() *store.Store { return m.opts.Store }

// Window returns the window the runtime navigates.
func (m *Module) Window() *effects.Window { return m.opts.Window }

// Page returns the page whose visibility gates polling.
func (m *Module) Page() *effects.Page { return m.opts.Page }

// Registry returns the adapter registry.
func (m *Module) Registry() *adapters.Registry { return m.opts.Registry }

// Coordinator returns the tab coordinator, or nil when the runtime is not
// mounted in the legacy pipeline.
func (m *Module) Coordinator() *tabs.TabCoordinator {
	if inst := m.instance(); inst != nil {
		return inst.coordinator
	}
	return nil
}

// Ban bans ip for d and reloads the ban list.
func (m *Module) Ban(ctx context.Context, ip string, d time.Duration) error {
	inst := m.instance()
	if inst == nil {
		return ErrNotMounted
	}
	return inst.actions.Ban(ctx, ip, d)
}

// Unban lifts the ban on ip and reloads the ban list.
func (m *Module) Unban(ctx context.Context, ip string) error {
	inst := m.instance()
	if inst == nil {
		return ErrNotMounted
	}
	return inst.actions.Unban(ctx, ip)
}

// instance is one mounted runtime.
type instance struct {
	id       string
	pipeline mount.Pipeline

	fx          *effects.Effects
	store       *store.Store
	admin       *session.AdminSession
	client      *api.Client
	refresher   *tabdata.Refresher
	actions     *tabdata.Actions
	tabs        *tabs.Runtime
	coordinator *tabs.TabCoordinator
	session     *session.Runtime
	scheduler   *refresh.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (m *Module) build(opts mount.Options) (*instance, error) {
	o := m.opts
	inst := &instance{
		id:       uuid.NewString(),
		pipeline: opts.Pipeline,
		store:    o.Store,
	}
	inst.ctx, inst.cancel = context.WithCancel(context.Background())

	resolver := api.NewEndpointResolver(o.Window.Origin(), locationSearch(o.Window))
	resolveEndpoint := resolver.Endpoint
	if o.Endpoint != "" {
		endpoint := o.Endpoint
		resolveEndpoint = func() string { return endpoint }
	}

	inst.admin = session.NewAdminSession(session.AdminSessionOptions{
		ResolveEndpoint: resolveEndpoint,
	})
	inst.admin.Attach(o.HTTP)

	inst.fx = effects.New(effects.Options{
		Window:       o.Window,
		Page:         o.Page,
		HTTP:         o.HTTP,
		SetTimeout:   o.SetTimer,
		ClearTimeout: o.ClearTimer,
		Now:          o.Now,
	})

	inst.client = api.New(api.Options{
		HTTP:           o.HTTP,
		Session:        inst.admin,
		OnUnauthorized: inst.onUnauthorized,
	})
	inst.refresher = tabdata.New(tabdata.Options{API: inst.client, Store: o.Store, Now: o.Now})

	inst.tabs = tabs.NewRuntime(tabs.RuntimeOptions{
		Page:          o.Page,
		Store:         o.Store,
		MountOptions:  opts.TabOptions,
		RefreshForTab: inst.refresher.RefreshForTab,
	})

	scheduler, err := refresh.New(refresh.Options{
		Effects:            inst.fx,
		Intervals:          o.Intervals,
		Normalize:          tabs.Normalize,
		ActiveTab:          inst.tabs.ActiveTab,
		HasValidAPIContext: inst.admin.HasValidAPIContext,
		RefreshForTab:      inst.refresher.RefreshForTab,
		Recorder:           o.Store,
	})
	if err != nil {
		inst.cancel()
		return nil, fmt.Errorf("build auto-refresh scheduler: %w", err)
	}
	inst.scheduler = scheduler

	afterLogout := o.AfterLogout
	inst.session = session.NewRuntime(session.RuntimeOptions{
		Controller:      inst.admin,
		Store:           o.Store,
		Effects:         inst.fx,
		ResolveEndpoint: resolveEndpoint,
		Messages:        o.Messages,
		AfterLogout: func() {
			inst.scheduler.Clear()
			if afterLogout != nil {
				afterLogout()
			}
			inst.fx.Redirect(inst.fx.BuildLoginRedirectPath())
		},
	})

	var tabRuntime adapters.TabRuntime = inst.tabs
	if opts.Pipeline == mount.PipelineExternal {
		tabRuntime = &externalTabs{inst: inst}
	} else {
		inst.coordinator = tabs.NewCoordinator(tabs.CoordinatorOptions{
			Effects:           inst.fx,
			Controllers:       inst.controllers(),
			OnActiveTabChange: inst.onActiveTabChange,
		})
		inst.tabs.SetCoordinator(inst.coordinator)
	}
	inst.actions = &tabdata.Actions{API: inst.client, Store: o.Store, Refresh: tabRuntime.RefreshTab}

	o.Registry.Configure(adapters.Config{
		Tabs:       tabRuntime,
		Session:    inst.session,
		Normalize:  tabs.Normalize,
		DefaultTab: tabs.Default,
	})
	logger.Debugf("dashboard runtime %s built (%s pipeline)", inst.id, opts.Pipeline)
	return inst, nil
}

func locationSearch(w *effects.Window) string {
	_, search, _ := w.Location()
	return search
}

// bootstrap restores the session and, when authenticated, loads the active
// tab and starts polling. Unauthenticated runtimes are sent to login.
func (inst *instance) bootstrap(ctx context.Context) {
	if inst.coordinator != nil {
		inst.coordinator.Init()
	} else {
		inst.tabs.SetActiveTab(inst.fx.ReadHashTab(), tabs.ReasonInitialHash)
	}

	if !inst.session.RestoreSession(ctx) {
		logger.Infof("dashboard runtime %s: no admin session, redirecting to login", inst.id)
		inst.fx.Redirect(inst.fx.BuildLoginRedirectPath())
		return
	}

	active := inst.tabs.ActiveTab()
	if err := inst.refresher.RefreshForTab(ctx, active, ReasonSessionRestored, tabs.RefreshOptions{}); err != nil {
		logger.Warnf("dashboard runtime %s: initial refresh of %s failed: %v", inst.id, active, err)
	}
	inst.scheduler.BindVisibility()
	inst.scheduler.Schedule()
}

func (inst *instance) teardown() {
	inst.scheduler.Destroy()
	if inst.coordinator != nil {
		inst.coordinator.Destroy()
		inst.tabs.SetCoordinator(nil)
	}
	inst.cancel()
	inst.wg.Wait()
	logger.Debugf("dashboard runtime %s unmounted", inst.id)
}

// onUnauthorized drops the session after the API rejected it.
func (inst *instance) onUnauthorized() {
	inst.admin.Clear()
	inst.store.SetSession(false, "")
	inst.scheduler.Clear()
}

// background runs a refresh outside the caller's goroutine, bounded by the
// instance lifetime.
func (inst *instance) background(tab, reason string) {
	inst.wg.Add(1)
	go func() {
		defer inst.wg.Done()
		_ = inst.refresher.RefreshForTab(inst.ctx, tab, reason, tabs.RefreshOptions{})
	}()
}

func (inst *instance) controllers() map[string]tabs.Controller {
	out := make(map[string]tabs.Controller, len(tabs.All))
	for _, tab := range tabs.All {
		out[tab] = tabs.Controller{
			Mount: func(tab, _, _ string) {
				inst.store.SetActiveTab(tab)
				if inst.admin.HasValidAPIContext() {
					inst.background(tab, ReasonTabMount)
				}
			},
			Refresh: func(ctx context.Context, tab, reason string) error {
				return inst.refresher.RefreshForTab(ctx, tab, reason, tabs.RefreshOptions{})
			},
		}
	}
	return out
}

func (inst *instance) onActiveTabChange(next, _, _ string) {
	inst.store.SetActiveTab(next)
	inst.scheduler.Schedule()
}

// externalTabs is the tab runtime handed to renderers that drive activation
// themselves: a tab change loads the new tab and re-arms polling.
type externalTabs struct {
	inst *instance
}

func (e *externalTabs) SetActiveTab(tab, reason string) string {
	prev := e.inst.tabs.ActiveTab()
	next := e.inst.tabs.SetActiveTab(tab, reason)
	if next != prev {
		if e.inst.admin.HasValidAPIContext() {
			e.inst.background(next, ReasonTabMount)
		}
		e.inst.scheduler.Schedule()
	}
	return next
}

func (e *externalTabs) ActiveTab() string { return e.inst.tabs.ActiveTab() }

func (e *externalTabs) RefreshTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
	prev := e.inst.tabs.ActiveTab()
	err := e.inst.tabs.RefreshTab(ctx, tab, reason, opts)
	if e.inst.tabs.ActiveTab() != prev {
		e.inst.scheduler.Schedule()
	}
	return err
}
