package effects_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/effects/effectstest"
)

func TestWriteHashTabSkipsRedundantNavigation(t *testing.T) {
	win := effects.NewWindow("https://admin.example.com", "/dashboard/index.html#monitoring")
	e := effects.New(effects.Options{Window: win})

	var changes atomic.Int32
	unsubscribe := e.OnHashChange(func() { changes.Add(1) })
	defer unsubscribe()

	e.WriteHashTab("monitoring", effects.WriteHashOptions{})
	e.WriteHashTab("#monitoring", effects.WriteHashOptions{})
	e.WriteHashTab("", effects.WriteHashOptions{})
	require.Equal(t, int32(0), changes.Load())
	require.Len(t, win.History(), 1)

	e.WriteHashTab("status", effects.WriteHashOptions{})
	require.Equal(t, int32(1), changes.Load())
	require.Equal(t, "status", e.ReadHashTab())
	require.Len(t, win.History(), 2)
}

func TestWriteHashTabReplaceKeepsHistoryLength(t *testing.T) {
	win := effects.NewWindow("https://admin.example.com", "/dashboard/index.html?x=1")
	e := effects.New(effects.Options{Window: win})

	var changes atomic.Int32
	e.OnHashChange(func() { changes.Add(1) })

	e.WriteHashTab("config", effects.WriteHashOptions{Replace: true})
	require.Equal(t, "config", e.ReadHashTab())
	require.Equal(t, []string{"/dashboard/index.html?x=1#config"}, win.History())
	require.Equal(t, int32(0), changes.Load())
}

func TestBundlesAreIndependent(t *testing.T) {
	a := effects.New(effects.Options{})
	b := effects.New(effects.Options{})

	a.WriteHashTab("tuning", effects.WriteHashOptions{})
	require.Equal(t, "tuning", a.ReadHashTab())
	require.Equal(t, "", b.ReadHashTab())

	a.Page().SetVisible(false)
	require.False(t, a.IsPageVisible())
	require.True(t, b.IsPageVisible())
}

func TestFocusTabReportsWhetherSomethingWasFocused(t *testing.T) {
	e := effects.New(effects.Options{})
	require.False(t, e.FocusTab("status"))

	focused := false
	e.Page().RegisterFocusable(effects.FocusID("status"), func() { focused = true })
	require.True(t, e.FocusTab("#status"))
	require.True(t, focused)
	require.Equal(t, effects.FocusID("status"), e.Page().Focused())
	require.False(t, e.FocusTab(""))
}

func TestVisibilityListenersFireOnChangeOnly(t *testing.T) {
	e := effects.New(effects.Options{})
	var calls atomic.Int32
	unsubscribe := e.OnVisibilityChange(func() { calls.Add(1) })

	e.Page().SetVisible(true)
	require.Equal(t, int32(0), calls.Load())

	e.Page().SetVisible(false)
	e.Page().SetVisible(true)
	require.Equal(t, int32(2), calls.Load())

	unsubscribe()
	e.Page().SetVisible(false)
	require.Equal(t, int32(2), calls.Load())
}

func TestDefaultLoginRedirectPathUsesCurrentLocation(t *testing.T) {
	win := effects.NewWindow("https://admin.example.com", "/dashboard/index.html#ip-bans")
	e := effects.New(effects.Options{Window: win})
	require.Equal(t,
		"/dashboard/login.html?next=%2Fdashboard%2Findex.html%23ip-bans",
		e.BuildLoginRedirectPath(),
	)

	e.Redirect(e.BuildLoginRedirectPath())
	require.Len(t, win.Redirects(), 1)
}

func TestOverridesAreUsed(t *testing.T) {
	timers := effectstest.NewFakeTimers()
	clock := effectstest.NewFakeClock(time.Unix(100, 0))
	opts := timers.Apply(effects.Options{Now: clock.Now})
	e := effects.New(opts)

	id := e.SetTimer(time.Second, func() {})
	require.Equal(t, 1, timers.Pending())
	e.ClearTimer(id)
	require.Equal(t, 0, timers.Pending())

	e.RequestFrame(func() {})
	require.Equal(t, 1, timers.Pending())
	require.Equal(t, time.Unix(100, 0), e.Now())
}

func TestRealTimersFireOnceAndClear(t *testing.T) {
	timers := effects.NewTimers()
	fired := make(chan struct{}, 2)

	timers.Set(5*time.Millisecond, func() { fired <- struct{}{} })
	cancelled := timers.Set(5*time.Millisecond, func() { fired <- struct{}{} })
	timers.Clear(cancelled)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	select {
	case <-fired:
		t.Fatalf("cleared timer fired")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 0, timers.Pending())
}

func TestDefaultRequestUsesHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-Shuma-CSRF") != "tok" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := effects.New(effects.Options{})
	res, err := e.Request(context.Background(), effects.Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/admin/logout",
		Header: http.Header{"X-Shuma-CSRF": []string{"tok"}},
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(res.Body))
}
