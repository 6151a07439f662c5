package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/tabs"
)

type fakeTabs struct {
	active    string
	refreshed []string
}

func (f *fakeTabs) SetActiveTab(tab, reason string) string {
	f.active = tabs.Normalize(tab)
	return f.active
}

func (f *fakeTabs) ActiveTab() string { return f.active }

func (f *fakeTabs) RefreshTab(_ context.Context, tab, reason string, _ tabs.RefreshOptions) error {
	f.refreshed = append(f.refreshed, tab+":"+reason)
	return nil
}

type fakeSession struct {
	state   session.State
	logouts int
}

func (f *fakeSession) State() session.State { return f.state }

func (f *fakeSession) RestoreSession(context.Context) bool {
	f.state = session.State{Authenticated: true, CSRFToken: "tok"}
	return true
}

func (f *fakeSession) LogoutSession(context.Context) {
	f.logouts++
	f.state = session.State{}
}

func TestEmptyRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.False(t, r.Configured())
	require.Equal(t, tabs.Monitoring, r.ActiveTab())
	require.Equal(t, "status", r.SetActiveTab("status", ""))
	require.Equal(t, tabs.Monitoring, r.SetActiveTab("", ""))
	require.NoError(t, r.RefreshTab(ctx, "status", "", tabs.RefreshOptions{}))
	require.False(t, r.RestoreSession(ctx))
	require.Equal(t, session.State{}, r.SessionState())
	r.LogoutSession(ctx)
}

func TestPanickingNormalizerFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	r.Configure(Config{
		Normalize:  func(string) string { panic("bad tab") },
		DefaultTab: tabs.Status,
	})
	require.Equal(t, tabs.Status, r.SetActiveTab("whatever", ""))
	require.Equal(t, tabs.Status, r.ActiveTab())
}

func TestConfiguredRegistryDelegates(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTabs{active: tabs.Monitoring}
	fs := &fakeSession{}
	r.Configure(Config{Tabs: ft, Session: fs, Normalize: tabs.Normalize})
	ctx := context.Background()

	require.True(t, r.Configured())
	require.Equal(t, tabs.IPBans, r.SetActiveTab("IP-BANS", ""))
	require.Equal(t, tabs.IPBans, r.ActiveTab())
	require.NoError(t, r.RefreshTab(ctx, tabs.Config, "", tabs.RefreshOptions{}))
	require.Equal(t, []string{"config:manual"}, ft.refreshed)

	require.True(t, r.RestoreSession(ctx))
	require.True(t, r.SessionState().Authenticated)
	r.LogoutSession(ctx)
	require.Equal(t, 1, fs.logouts)
	require.False(t, r.SessionState().Authenticated)

	r.Clear()
	require.False(t, r.Configured())
	require.Equal(t, tabs.Monitoring, r.ActiveTab())
	// The normalizer survives Clear.
	require.Equal(t, tabs.Monitoring, r.SetActiveTab("nope", ""))
}
