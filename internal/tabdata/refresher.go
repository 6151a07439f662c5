// Package tabdata loads the API data behind each dashboard tab into the
// store.
package tabdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// Monitoring query window.
const (
	MonitoringHours = 24
	MonitoringLimit = 10
)

const monitoringEmptyMessage = "No operational events yet. Monitoring will populate as traffic arrives."

// API is the slice of the admin API the refresher needs.
type API interface {
	Monitoring(ctx context.Context, hours, limit int) (json.RawMessage, error)
	Bans(ctx context.Context) (json.RawMessage, error)
	Config(ctx context.Context) (json.RawMessage, error)
}

// Options configures a Refresher.
type Options struct {
	API   API
	Store *store.Store
	Now   func() time.Time
}

// Refresher implements tabs.RefreshFunc over the admin API.
type Refresher struct {
	api   API
	store *store.Store
	now   func() time.Time
}

// New returns a refresher. A nil API turns every refresh into a no-op.
func New(opts Options) *Refresher {
	r := &Refresher{api: opts.API, store: opts.Store, now: opts.Now}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

type configBacked struct {
	loading string
	empty   string
}

var configBackedTabs = map[string]configBacked{
	tabs.Status: {"Loading status signals...", "No status config snapshot available yet."},
	tabs.Config: {"Loading config...", "No config snapshot available yet."},
	tabs.Tuning: {"Loading tuning values...", "No tuning config snapshot available yet."},
}

// RefreshForTab loads tab's data. Failures are recorded on the tab and
// returned; cancellation is not treated as a failure.
func (r *Refresher) RefreshForTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
	if reason == "" {
		reason = tabs.ReasonManual
	}
	active := tabs.Normalize(tab)
	start := r.now()

	var err error
	switch active {
	case tabs.IPBans:
		err = r.refreshIPBans(ctx, reason, opts)
	case tabs.Status, tabs.Config, tabs.Tuning:
		err = r.refreshConfigBacked(ctx, active, reason, opts)
	default:
		err = r.refreshMonitoring(ctx, reason, opts)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			if r.store != nil {
				r.store.SetTabLoading(active, false)
			}
			return nil
		}
		logger.Errorf("dashboard refresh error (%s): %v", active, err)
		if r.store != nil {
			r.store.SetTabEmpty(active, false, "")
			r.store.SetTabError(active, err.Error())
		}
		return err
	}

	if r.store != nil {
		r.store.MarkTabUpdated(active)
		r.store.RecordRefreshMetrics(store.RefreshSample{
			Tab:          active,
			Reason:       reason,
			FetchLatency: r.now().Sub(start),
		})
	}
	return nil
}

// RefreshActive refreshes the store's active tab.
func (r *Refresher) RefreshActive(ctx context.Context, reason string) error {
	tab := tabs.Default
	if r.store != nil {
		tab = r.store.ActiveTab()
	}
	return r.RefreshForTab(ctx, tab, reason, tabs.RefreshOptions{})
}

func (r *Refresher) showLoading(tab, message string) {
	if r.store == nil {
		return
	}
	r.store.ShowTabLoading(tab, message)
}

func (r *Refresher) showEmpty(tab, message string) {
	if r.store == nil {
		return
	}
	r.store.ClearTabError(tab)
	r.store.SetTabLoading(tab, false)
	r.store.SetTabEmpty(tab, true, message)
}

func (r *Refresher) clearMessage(tab string) {
	if r.store == nil {
		return
	}
	r.store.SetTabLoading(tab, false)
	r.store.SetTabEmpty(tab, false, "")
	r.store.ClearTabError(tab)
}

func isConfigEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return true
	}
	return len(m) == 0
}

// sharedConfig returns the cached config snapshot, fetching it when absent
// or when forced.
func (r *Refresher) sharedConfig(ctx context.Context, opts tabs.RefreshOptions) (json.RawMessage, error) {
	var existing json.RawMessage
	if r.store != nil {
		existing = r.store.Snapshot(store.SnapshotConfig)
	}
	if r.api == nil || (!opts.Force && !isConfigEmpty(existing)) {
		return existing, nil
	}
	cfg, err := r.api.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if r.store != nil {
		r.store.SetSnapshot(store.SnapshotConfig, cfg)
	}
	return cfg, nil
}

func (r *Refresher) refreshMonitoring(ctx context.Context, reason string, opts tabs.RefreshOptions) error {
	if r.api == nil {
		return nil
	}
	auto := reason == tabs.ReasonAutoRefresh
	if !auto {
		r.showLoading(tabs.Monitoring, "Loading monitoring data...")
	}

	raw, err := r.api.Monitoring(ctx, MonitoringHours, MonitoringLimit)
	if err != nil {
		return fmt.Errorf("load monitoring: %w", err)
	}
	if r.store != nil {
		snapshots, err := monitoringSnapshots(raw)
		if err != nil {
			return err
		}
		for key, value := range snapshots {
			r.store.SetSnapshot(key, value)
		}
		if r.store.MonitoringEmpty() {
			r.showEmpty(tabs.Monitoring, monitoringEmptyMessage)
		} else {
			r.clearMessage(tabs.Monitoring)
		}
	}

	if !auto {
		if _, err := r.sharedConfig(ctx, opts); err != nil {
			return err
		}
	}
	return nil
}

// monitoringSnapshots splits the monitoring payload into per-key snapshots.
// The analytics ban count is taken from the ban list when one is present.
func monitoringSnapshots(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var payload struct {
		Details map[string]json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode monitoring: %w", err)
	}
	d := payload.Details
	out := map[string]json.RawMessage{
		store.SnapshotMonitoring: raw,
		store.SnapshotEvents:     orDefault(d["events"], `{}`),
		store.SnapshotBans:       orDefault(d["bans"], `{"bans":[]}`),
		store.SnapshotMaze:       orDefault(d["maze"], `{}`),
		store.SnapshotCDP:        orDefault(d["cdp"], `{}`),
		store.SnapshotCDPEvents:  orDefault(d["cdp_events"], `{"events":[]}`),
	}

	analytics := map[string]any{"ban_count": 0, "test_mode": false, "fail_mode": "open"}
	if a := d["analytics"]; len(a) > 0 {
		_ = json.Unmarshal(a, &analytics)
	}
	var bans struct {
		Bans []json.RawMessage `json:"bans"`
	}
	if err := json.Unmarshal(out[store.SnapshotBans], &bans); err == nil && bans.Bans != nil {
		analytics["ban_count"] = len(bans.Bans)
	}
	encoded, err := json.Marshal(analytics)
	if err != nil {
		return nil, fmt.Errorf("encode analytics: %w", err)
	}
	out[store.SnapshotAnalytics] = encoded
	return out, nil
}

func orDefault(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(fallback)
	}
	return raw
}

func (r *Refresher) refreshIPBans(ctx context.Context, reason string, opts tabs.RefreshOptions) error {
	if r.api == nil {
		return nil
	}
	includeConfig := reason != tabs.ReasonAutoRefresh
	if includeConfig {
		r.showLoading(tabs.IPBans, "Loading ban list...")
	}

	var bans json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bans, err = r.api.Bans(gctx)
		if err != nil {
			return fmt.Errorf("load bans: %w", err)
		}
		return nil
	})
	if includeConfig {
		g.Go(func() error {
			_, err := r.sharedConfig(gctx, opts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if r.store != nil {
		r.store.SetSnapshot(store.SnapshotBans, bans)
	}
	r.clearMessage(tabs.IPBans)
	return nil
}

func (r *Refresher) refreshConfigBacked(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error {
	messages := configBackedTabs[tab]
	if reason != tabs.ReasonAutoRefresh {
		r.showLoading(tab, messages.loading)
	}
	cfg, err := r.sharedConfig(ctx, opts)
	if err != nil {
		return err
	}
	if isConfigEmpty(cfg) {
		r.showEmpty(tab, messages.empty)
	} else {
		r.clearMessage(tab)
	}
	return nil
}
