package mount

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/adapters"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/tabs"
)

type countingModule struct {
	registry *adapters.Registry
	release  chan struct{}

	apps      atomic.Int32
	externals atomic.Int32
	unmounts  atomic.Int32
	failNext  atomic.Bool
}

type stubSession struct{}

func (stubSession) State() session.State { return session.State{Authenticated: true, CSRFToken: "tok"} }

func (stubSession) RestoreSession(context.Context) bool { return true }

func (stubSession) LogoutSession(context.Context) {}

func (m *countingModule) install() {
	m.registry.Configure(adapters.Config{Session: stubSession{}, Normalize: tabs.Normalize})
}

func (m *countingModule) MountApp(ctx context.Context, _ Options) error {
	m.apps.Add(1)
	if m.release != nil {
		<-m.release
	}
	if m.failNext.CompareAndSwap(true, false) {
		return errors.New("bootstrap failed")
	}
	m.install()
	return nil
}

func (m *countingModule) MountExternal(ctx context.Context, _ Options) error {
	m.externals.Add(1)
	m.install()
	return nil
}

func (m *countingModule) Unmount() {
	m.unmounts.Add(1)
	m.registry.Clear()
}

type appOnlyModule struct{}

func (appOnlyModule) MountApp(context.Context, Options) error { return nil }

func newCounting(t *testing.T) (*Controller, *countingModule, *atomic.Int32) {
	t.Helper()
	registry := adapters.NewRegistry()
	mod := &countingModule{registry: registry}
	var loads atomic.Int32
	c := NewController(func(context.Context) (Module, error) {
		loads.Add(1)
		return mod, nil
	}, registry)
	return c, mod, &loads
}

func TestConcurrentMountsInitializeOnce(t *testing.T) {
	c, mod, loads := newCounting(t)
	mod.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Mount(context.Background(), Options{})
		}(i)
	}

	require.Eventually(t, func() bool { return mod.apps.Load() == 1 }, time.Second, time.Millisecond)
	close(mod.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.EqualValues(t, 1, mod.apps.Load())
	require.EqualValues(t, 1, loads.Load())

	mounted, mode := c.Mounted()
	require.True(t, mounted)
	require.Equal(t, PipelineLegacy, mode)

	require.NoError(t, c.Mount(context.Background(), Options{Pipeline: PipelineLegacy}))
	require.EqualValues(t, 1, mod.apps.Load())
}

func TestMountFailureIsNotCached(t *testing.T) {
	c, mod, loads := newCounting(t)
	mod.failNext.Store(true)

	err := c.Mount(context.Background(), Options{})
	require.Error(t, err)
	mounted, _ := c.Mounted()
	require.False(t, mounted)

	require.NoError(t, c.Mount(context.Background(), Options{}))
	require.EqualValues(t, 2, mod.apps.Load())
	// The module itself is cached once it loaded.
	require.EqualValues(t, 1, loads.Load())
}

func TestLoaderFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := NewController(func(context.Context) (Module, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("import failed")
		}
		return appOnlyModule{}, nil
	}, nil)

	require.Error(t, c.Mount(context.Background(), Options{}))
	require.NoError(t, c.Mount(context.Background(), Options{}))
	require.EqualValues(t, 2, calls.Load())
}

func TestPipelineSwitchRemounts(t *testing.T) {
	c, mod, _ := newCounting(t)

	require.NoError(t, c.Mount(context.Background(), Options{}))
	require.NoError(t, c.Mount(context.Background(), Options{Pipeline: PipelineExternal}))

	require.EqualValues(t, 1, mod.apps.Load())
	require.EqualValues(t, 1, mod.externals.Load())
	require.EqualValues(t, 1, mod.unmounts.Load())
	_, mode := c.Mounted()
	require.Equal(t, PipelineExternal, mode)
}

func TestExternalPipelineRequiresEntrypoint(t *testing.T) {
	c := NewController(func(context.Context) (Module, error) { return appOnlyModule{}, nil }, nil)
	err := c.Mount(context.Background(), Options{Pipeline: PipelineExternal})
	require.ErrorIs(t, err, ErrMissingEntrypoint)

	c = NewController(nil, nil)
	require.ErrorIs(t, c.Mount(context.Background(), Options{}), ErrMissingEntrypoint)
}

func TestUnmountOnlyWhenMounted(t *testing.T) {
	c, mod, _ := newCounting(t)
	c.Unmount()
	require.Zero(t, mod.unmounts.Load())

	require.NoError(t, c.Mount(context.Background(), Options{}))
	c.Unmount()
	c.Unmount()
	require.EqualValues(t, 1, mod.unmounts.Load())
	require.False(t, c.Registry().Configured())
}

func TestAccessorsWaitForInflightMount(t *testing.T) {
	c, mod, _ := newCounting(t)
	mod.release = make(chan struct{})

	mountErr := make(chan error, 1)
	go func() { mountErr <- c.Mount(context.Background(), Options{}) }()
	require.Eventually(t, func() bool { return mod.apps.Load() == 1 }, time.Second, time.Millisecond)

	restored := make(chan bool, 1)
	go func() { restored <- c.RestoreSession(context.Background()) }()

	select {
	case <-restored:
		t.Fatalf("RestoreSession returned before the mount finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(mod.release)
	require.NoError(t, <-mountErr)
	require.True(t, <-restored)
	require.True(t, c.SessionState(context.Background()).Authenticated)
}

func TestParsePipeline(t *testing.T) {
	require.Equal(t, PipelineExternal, ParsePipeline(" External "))
	require.Equal(t, PipelineLegacy, ParsePipeline("native"))
	require.Equal(t, PipelineLegacy, ParsePipeline(""))
}
