// Package mount starts and stops the dashboard runtime exactly once no
// matter how many callers ask for it concurrently.
package mount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/shuma/dashboard/internal/adapters"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// ErrMissingEntrypoint is returned when the loaded module cannot be mounted
// in the requested pipeline.
var ErrMissingEntrypoint = errors.New("dashboard runtime entrypoint is missing")

// Pipeline selects who drives tab activation.
type Pipeline string

const (
	// PipelineLegacy lets the runtime's tab coordinator drive activation.
	PipelineLegacy Pipeline = "legacy"
	// PipelineExternal lets the renderer drive activation.
	PipelineExternal Pipeline = "external"
)

// ParsePipeline maps "external" (any case) to PipelineExternal and anything
// else to PipelineLegacy.
func ParsePipeline(raw string) Pipeline {
	if Pipeline(strings.ToLower(strings.TrimSpace(raw))) == PipelineExternal {
		return PipelineExternal
	}
	return PipelineLegacy
}

// Options are forwarded to the module's mount hook.
type Options struct {
	Pipeline Pipeline
}

// TabOptions translates the pipeline into tab runtime mount options.
func (o Options) TabOptions() tabs.MountOptions {
	return tabs.MountOptions{ExternalTabPipeline: o.Pipeline == PipelineExternal}
}

// Module is a loadable dashboard runtime.
type Module interface {
	// MountApp mounts the runtime in the legacy pipeline.
	MountApp(ctx context.Context, opts Options) error
}

// ExternalMounter is implemented by modules that support the external
// pipeline.
type ExternalMounter interface {
	MountExternal(ctx context.Context, opts Options) error
}

// Unmounter is implemented by modules with teardown work.
type Unmounter interface {
	Unmount()
}

// Loader resolves the runtime module.
type Loader func(ctx context.Context) (Module, error)

// Controller deduplicates mounts and proxies calls to the adapter registry.
type Controller struct {
	loader   Loader
	registry *adapters.Registry
	flight   singleflight.Group

	mu       sync.Mutex
	module   Module
	mounted  bool
	mode     Pipeline
	inflight chan struct{}
}

// NewController returns an unmounted controller.
func NewController(loader Loader, registry *adapters.Registry) *Controller {
	if registry == nil {
		registry = adapters.NewRegistry()
	}
	return &Controller{loader: loader, registry: registry, mode: PipelineLegacy}
}

// Registry returns the registry the mounted runtime installs into.
func (c *Controller) Registry() *adapters.Registry { return c.registry }

func (c *Controller) resolveModule(ctx context.Context) (Module, error) {
	c.mu.Lock()
	m := c.module
	c.mu.Unlock()
	if m != nil {
		return m, nil
	}
	if c.loader == nil {
		return nil, fmt.Errorf("%w: no loader", ErrMissingEntrypoint)
	}
	m, err := c.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dashboard runtime: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: loader returned no module", ErrMissingEntrypoint)
	}
	c.mu.Lock()
	c.module = m
	c.mu.Unlock()
	return m, nil
}

// Mount resolves and mounts the runtime. Concurrent calls share a single
// initialization. Mounting again in the same pipeline is a no-op; a
// different pipeline unmounts first. Failures are not cached.
func (c *Controller) Mount(ctx context.Context, opts Options) error {
	if opts.Pipeline != PipelineExternal {
		opts.Pipeline = PipelineLegacy
	}

	c.mu.Lock()
	mounted, mode := c.mounted, c.mode
	c.mu.Unlock()
	if mounted && mode == opts.Pipeline {
		return nil
	}
	if mounted {
		c.Unmount()
	}

	// Accessors called from now on wait for this mount to settle.
	var created chan struct{}
	c.mu.Lock()
	if c.inflight == nil {
		created = make(chan struct{})
		c.inflight = created
	}
	c.mu.Unlock()

	ch := c.flight.DoChan("mount", func() (any, error) {
		c.mu.Lock()
		done := c.inflight
		if done == nil {
			done = make(chan struct{})
			c.inflight = done
		}
		skip := c.mounted && c.mode == opts.Pipeline
		c.mu.Unlock()
		defer c.settle(done)

		if skip {
			return nil, nil
		}
		// Detached from the first caller so its cancellation cannot fail
		// the mount for everyone sharing it.
		return nil, c.mount(context.WithoutCancel(ctx), opts)
	})

	select {
	case res := <-ch:
		c.settle(created)
		return res.Err
	case <-ctx.Done():
		go func() {
			<-ch
			c.settle(created)
		}()
		return ctx.Err()
	}
}

// settle releases waiters on done if it is still the in-flight marker.
func (c *Controller) settle(done chan struct{}) {
	if done == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == done {
		c.inflight = nil
		close(done)
	}
}

func (c *Controller) mount(ctx context.Context, opts Options) error {
	m, err := c.resolveModule(ctx)
	if err != nil {
		return err
	}

	if opts.Pipeline == PipelineExternal {
		ext, ok := m.(ExternalMounter)
		if !ok {
			return fmt.Errorf("%w: MountExternal", ErrMissingEntrypoint)
		}
		err = ext.MountExternal(ctx, opts)
	} else {
		err = m.MountApp(ctx, opts)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.mounted = true
	c.mode = opts.Pipeline
	c.mu.Unlock()
	logger.Debugf("dashboard runtime mounted (%s pipeline)", opts.Pipeline)
	return nil
}

// Unmount tears the runtime down. It does nothing unless mounted.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	m := c.module
	c.mounted = false
	c.mode = PipelineLegacy
	c.mu.Unlock()

	if u, ok := m.(Unmounter); ok {
		u.Unmount()
	}
	logger.Debugf("dashboard runtime unmounted")
}

// Mounted reports whether the runtime is mounted and in which pipeline.
func (c *Controller) Mounted() (bool, Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted, c.mode
}

// wait blocks until any in-flight mount settles.
func (c *Controller) wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.inflight
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RestoreSession waits for any in-flight mount, then restores the session.
func (c *Controller) RestoreSession(ctx context.Context) bool {
	if c.wait(ctx) != nil {
		return false
	}
	return c.registry.RestoreSession(ctx)
}

// SessionState waits for any in-flight mount, then returns the session.
func (c *Controller) SessionState(ctx context.Context) session.State {
	if c.wait(ctx) != nil {
		return session.State{}
	}
	return c.registry.SessionState()
}

// RefreshTab waits for any in-flight mount, then refreshes tab.
func (c *Controller) RefreshTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.registry.RefreshTab(ctx, tab, reason, opts)
}

// SetActiveTab waits for any in-flight mount, then activates tab.
func (c *Controller) SetActiveTab(ctx context.Context, tab string) string {
	if c.wait(ctx) != nil {
		return c.registry.DefaultTab()
	}
	return c.registry.SetActiveTab(tab, tabs.ReasonExternal)
}

// ActiveTab waits for any in-flight mount, then returns the active tab.
func (c *Controller) ActiveTab(ctx context.Context) string {
	if c.wait(ctx) != nil {
		return c.registry.DefaultTab()
	}
	return c.registry.ActiveTab()
}

// LogoutSession waits for any in-flight mount, then logs out.
func (c *Controller) LogoutSession(ctx context.Context) {
	if c.wait(ctx) != nil {
		return
	}
	c.registry.LogoutSession(ctx)
}
