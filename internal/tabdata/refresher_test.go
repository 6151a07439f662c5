package tabdata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/effects/effectstest"
	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabs"
)

type fakeAPI struct {
	monitoring json.RawMessage
	bans       json.RawMessage
	config     json.RawMessage
	err        error

	monitoringCalls atomic.Int32
	bansCalls       atomic.Int32
	configCalls     atomic.Int32

	mu      sync.Mutex
	banned  []string
	unbaned []string
}

func (f *fakeAPI) Monitoring(_ context.Context, hours, limit int) (json.RawMessage, error) {
	f.monitoringCalls.Add(1)
	if hours != MonitoringHours || limit != MonitoringLimit {
		return nil, errors.New("unexpected monitoring window")
	}
	return f.monitoring, f.err
}

func (f *fakeAPI) Bans(context.Context) (json.RawMessage, error) {
	f.bansCalls.Add(1)
	return f.bans, f.err
}

func (f *fakeAPI) Config(context.Context) (json.RawMessage, error) {
	f.configCalls.Add(1)
	return f.config, f.err
}

func (f *fakeAPI) Ban(_ context.Context, ip string, _ int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned = append(f.banned, ip)
	return f.err
}

func (f *fakeAPI) Unban(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbaned = append(f.unbaned, ip)
	return f.err
}

func newRefresher(t *testing.T, api *fakeAPI) (*Refresher, *store.Store) {
	t.Helper()
	clock := effectstest.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := store.New(store.Options{Now: clock.Now})
	return New(Options{API: api, Store: s, Now: clock.Now}), s
}

func TestRefreshMonitoringSplitsSnapshots(t *testing.T) {
	api := &fakeAPI{
		monitoring: json.RawMessage(`{"details":{
			"analytics":{"ban_count":0,"test_mode":true},
			"events":{"recent_events":[{"ip":"10.0.0.1"}]},
			"bans":{"bans":[{"ip":"a"},{"ip":"b"}]},
			"maze":{"total_hits":3}
		}}`),
		config: json.RawMessage(`{"test_mode":true}`),
	}
	r, s := newRefresher(t, api)

	require.NoError(t, r.RefreshForTab(context.Background(), tabs.Monitoring, tabs.ReasonManual, tabs.RefreshOptions{}))

	var analytics struct {
		BanCount int  `json:"ban_count"`
		TestMode bool `json:"test_mode"`
	}
	require.NoError(t, json.Unmarshal(s.Snapshot(store.SnapshotAnalytics), &analytics))
	require.Equal(t, 2, analytics.BanCount)
	require.True(t, analytics.TestMode)
	require.JSONEq(t, `{"events":[]}`, string(s.Snapshot(store.SnapshotCDPEvents)))
	require.JSONEq(t, `{"test_mode":true}`, string(s.Snapshot(store.SnapshotConfig)))

	status := s.TabStatus(tabs.Monitoring)
	require.False(t, status.Loading)
	require.False(t, status.Empty)
	require.False(t, status.Stale)
	require.Equal(t, 1, s.Telemetry().Refresh.FetchLatency.TotalSamples)
}

func TestRefreshMonitoringEmpty(t *testing.T) {
	api := &fakeAPI{monitoring: json.RawMessage(`{"details":{}}`)}
	r, s := newRefresher(t, api)

	require.NoError(t, r.RefreshForTab(context.Background(), tabs.Monitoring, tabs.ReasonAutoRefresh, tabs.RefreshOptions{}))

	status := s.TabStatus(tabs.Monitoring)
	require.True(t, status.Empty)
	require.Equal(t, monitoringEmptyMessage, status.Message)
	// Auto refresh leaves the shared config alone.
	require.Zero(t, api.configCalls.Load())
}

func TestRefreshIPBansFetchesConfigOnlyWhenNeeded(t *testing.T) {
	api := &fakeAPI{
		bans:   json.RawMessage(`{"bans":[{"ip":"192.0.2.1"}]}`),
		config: json.RawMessage(`{"ban_duration":3600}`),
	}
	r, s := newRefresher(t, api)
	ctx := context.Background()

	require.NoError(t, r.RefreshForTab(ctx, tabs.IPBans, tabs.ReasonManual, tabs.RefreshOptions{}))
	require.EqualValues(t, 1, api.bansCalls.Load())
	require.EqualValues(t, 1, api.configCalls.Load())
	require.JSONEq(t, string(api.bans), string(s.Snapshot(store.SnapshotBans)))

	// The cached config is reused.
	require.NoError(t, r.RefreshForTab(ctx, tabs.IPBans, tabs.ReasonManual, tabs.RefreshOptions{}))
	require.EqualValues(t, 1, api.configCalls.Load())

	require.NoError(t, r.RefreshForTab(ctx, tabs.IPBans, tabs.ReasonManual, tabs.RefreshOptions{Force: true}))
	require.EqualValues(t, 2, api.configCalls.Load())

	require.NoError(t, r.RefreshForTab(ctx, tabs.IPBans, tabs.ReasonAutoRefresh, tabs.RefreshOptions{Force: true}))
	require.EqualValues(t, 2, api.configCalls.Load())
	require.EqualValues(t, 4, api.bansCalls.Load())
}

func TestRefreshConfigBackedTabs(t *testing.T) {
	cases := []struct {
		tab   string
		empty string
	}{
		{tabs.Status, "No status config snapshot available yet."},
		{tabs.Config, "No config snapshot available yet."},
		{tabs.Tuning, "No tuning config snapshot available yet."},
	}
	for _, tc := range cases {
		t.Run(tc.tab, func(t *testing.T) {
			api := &fakeAPI{config: json.RawMessage(`{}`)}
			r, s := newRefresher(t, api)
			require.NoError(t, r.RefreshForTab(context.Background(), tc.tab, "", tabs.RefreshOptions{}))

			status := s.TabStatus(tc.tab)
			require.True(t, status.Empty)
			require.Equal(t, tc.empty, status.Message)
		})
	}

	api := &fakeAPI{config: json.RawMessage(`{"rate_limit":80}`)}
	r, s := newRefresher(t, api)
	require.NoError(t, r.RefreshForTab(context.Background(), tabs.Tuning, "", tabs.RefreshOptions{}))
	require.False(t, s.TabStatus(tabs.Tuning).Empty)
	require.Equal(t, tabs.ReasonManual, s.Telemetry().Refresh.LastReason)
}

func TestRefreshErrorsAreRecorded(t *testing.T) {
	api := &fakeAPI{err: errors.New("upstream down")}
	r, s := newRefresher(t, api)

	err := r.RefreshForTab(context.Background(), tabs.IPBans, tabs.ReasonManual, tabs.RefreshOptions{})
	require.ErrorContains(t, err, "upstream down")

	status := s.TabStatus(tabs.IPBans)
	require.False(t, status.Loading)
	require.Contains(t, status.Error, "upstream down")
	require.True(t, status.Stale)
}

func TestRefreshIgnoresCancellation(t *testing.T) {
	api := &fakeAPI{err: context.Canceled}
	r, s := newRefresher(t, api)

	require.NoError(t, r.RefreshForTab(context.Background(), tabs.Config, tabs.ReasonManual, tabs.RefreshOptions{}))
	require.Empty(t, s.TabStatus(tabs.Config).Error)
}

func TestActionsInvalidateAndRefresh(t *testing.T) {
	api := &fakeAPI{bans: json.RawMessage(`{"bans":[]}`), config: json.RawMessage(`{"x":1}`)}
	r, s := newRefresher(t, api)
	ctx := context.Background()
	require.NoError(t, r.RefreshForTab(ctx, tabs.IPBans, tabs.ReasonManual, tabs.RefreshOptions{}))
	require.False(t, s.IsTabStale(tabs.IPBans))

	var reasons []string
	actions := &Actions{
		API:   api,
		Store: s,
		Refresh: func(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
			require.True(t, s.IsTabStale(tabs.IPBans))
			reasons = append(reasons, reason)
			return r.RefreshForTab(ctx, tab, reason, opts)
		},
	}

	require.NoError(t, actions.Ban(ctx, " 198.51.100.7 ", 0))
	require.NoError(t, actions.Unban(ctx, "198.51.100.7"))
	require.Error(t, actions.Ban(ctx, "  ", time.Minute))

	require.Equal(t, []string{ReasonBanSave, ReasonUnbanSave}, reasons)
	require.Equal(t, []string{"198.51.100.7"}, api.banned)
	require.Equal(t, []string{"198.51.100.7"}, api.unbaned)
	require.False(t, s.IsTabStale(tabs.IPBans))
}
