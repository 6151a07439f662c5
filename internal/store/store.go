// Package store holds the dashboard's shared state: the active tab, the
// session mirror, API snapshots, per-tab status and runtime telemetry.
//
// All methods are safe for concurrent use. Subscribers are notified after
// every change, outside the store lock.
package store

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/shuma/dashboard/internal/tabs"
)

// Snapshot keys.
const (
	SnapshotAnalytics  = "analytics"
	SnapshotEvents     = "events"
	SnapshotBans       = "bans"
	SnapshotMaze       = "maze"
	SnapshotCDP        = "cdp"
	SnapshotCDPEvents  = "cdpEvents"
	SnapshotMonitoring = "monitoring"
	SnapshotConfig     = "config"
)

var snapshotKeys = []string{
	SnapshotAnalytics,
	SnapshotEvents,
	SnapshotBans,
	SnapshotMaze,
	SnapshotCDP,
	SnapshotCDPEvents,
	SnapshotMonitoring,
	SnapshotConfig,
}

// Invalidation scopes beyond the individual tab names.
const (
	ScopeAll            = "all"
	ScopeSecurityConfig = "securityConfig"
)

var invalidationScopes = map[string][]string{
	ScopeAll:            tabs.All,
	tabs.Monitoring:     {tabs.Monitoring},
	tabs.IPBans:         {tabs.IPBans},
	tabs.Status:         {tabs.Status},
	tabs.Config:         {tabs.Config},
	tabs.Tuning:         {tabs.Tuning},
	ScopeSecurityConfig: {tabs.Status, tabs.Config, tabs.Tuning},
}

const (
	defaultLoadingMessage = "Loading..."
	defaultEmptyMessage   = "No data."
)

// Session is the store's copy of the admin session.
type Session struct {
	Authenticated bool
	CSRFToken     string
}

// TabStatus is the render state of one tab.
type TabStatus struct {
	Loading   bool
	Error     string
	Message   string
	Empty     bool
	UpdatedAt time.Time
	Stale     bool
}

// Options configures a Store.
type Options struct {
	InitialTab string
	Intervals  tabs.IntervalTable
	Now        func() time.Time
}

// Store is the dashboard state container.
type Store struct {
	intervals tabs.IntervalTable
	now       func() time.Time

	mu        sync.Mutex
	activeTab string
	session   Session
	snapshots map[string]json.RawMessage
	versions  map[string]int
	status    map[string]TabStatus
	stale     map[string]bool
	telemetry Telemetry

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSub     int
}

var _ tabs.Store = (*Store)(nil)

// New returns a store positioned on opts.InitialTab with every tab stale.
func New(opts Options) *Store {
	s := &Store{
		intervals:   opts.Intervals,
		now:         opts.Now,
		subscribers: make(map[int]func()),
	}
	if s.intervals == nil {
		s.intervals = tabs.DefaultIntervals()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.resetLocked(opts.InitialTab)
	return s
}

func (s *Store) resetLocked(tab string) {
	s.activeTab = tabs.Normalize(tab)
	s.session = Session{}
	s.snapshots = make(map[string]json.RawMessage, len(snapshotKeys))
	s.versions = make(map[string]int, len(snapshotKeys))
	s.status = make(map[string]TabStatus, len(tabs.All))
	s.stale = make(map[string]bool, len(tabs.All))
	for _, t := range tabs.All {
		s.status[t] = TabStatus{}
		s.stale[t] = true
	}
	s.telemetry = newTelemetry()
}

// Reset restores the initial state positioned on tab.
func (s *Store) Reset(tab string) {
	s.mu.Lock()
	s.resetLocked(tab)
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn to run after each change and returns the function
// that removes it.
func (s *Store) Subscribe(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subscribers[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// update applies fn under the lock and notifies when fn reports a change.
func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetActiveTab implements tabs.Store.
func (s *Store) SetActiveTab(tab string) {
	next := tabs.Normalize(tab)
	s.update(func() bool {
		if s.activeTab == next {
			return false
		}
		s.activeTab = next
		return true
	})
}

// ActiveTab implements tabs.Store.
func (s *Store) ActiveTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTab
}

// SetSession mirrors the admin session. The CSRF token is dropped unless the
// session is authenticated.
func (s *Store) SetSession(authenticated bool, csrfToken string) {
	next := Session{Authenticated: authenticated}
	if authenticated {
		next.CSRFToken = csrfToken
	}
	s.update(func() bool {
		if s.session == next {
			return false
		}
		s.session = next
		return true
	})
}

// Session returns the mirrored admin session.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func isSnapshotKey(key string) bool {
	for _, k := range snapshotKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SetSnapshot stores the raw API payload under key and bumps its version.
// Unknown keys and identical payloads are ignored.
func (s *Store) SetSnapshot(key string, value json.RawMessage) {
	if !isSnapshotKey(key) {
		return
	}
	s.update(func() bool {
		prev, ok := s.snapshots[key]
		if ok && bytes.Equal(prev, value) {
			return false
		}
		s.snapshots[key] = append(json.RawMessage(nil), value...)
		s.versions[key]++
		return true
	})
}

// Snapshot returns a copy of the payload stored under key, or nil.
func (s *Store) Snapshot(key string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.snapshots[key]
	if !ok {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}

// HasSnapshot reports whether key holds a payload.
func (s *Store) HasSnapshot(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[key]
	return ok
}

// SnapshotVersion counts the changes applied to key.
func (s *Store) SnapshotVersion(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[key]
}

func (s *Store) modifyStatus(tab string, fn func(*TabStatus)) {
	t := tabs.Normalize(tab)
	s.update(func() bool {
		st := s.status[t]
		fn(&st)
		s.status[t] = st
		return true
	})
}

// SetTabLoading toggles the loading flag. Starting a load clears the error.
func (s *Store) SetTabLoading(tab string, loading bool) {
	s.modifyStatus(tab, func(st *TabStatus) {
		st.Loading = loading
		if loading {
			st.Error = ""
			st.Message = defaultLoadingMessage
		}
	})
}

// ShowTabLoading starts a load of tab and shows message in place of the
// default loading text.
func (s *Store) ShowTabLoading(tab, message string) {
	if message == "" {
		message = defaultLoadingMessage
	}
	s.modifyStatus(tab, func(st *TabStatus) {
		st.Loading = true
		st.Empty = false
		st.Error = ""
		st.Message = message
	})
}

// SetTabError records a failed load.
func (s *Store) SetTabError(tab, message string) {
	now := s.now()
	s.modifyStatus(tab, func(st *TabStatus) {
		st.Error = message
		st.Message = message
		st.Loading = false
		st.UpdatedAt = now
	})
}

// ClearTabError removes the error and message of tab.
func (s *Store) ClearTabError(tab string) {
	s.modifyStatus(tab, func(st *TabStatus) {
		st.Error = ""
		st.Message = ""
	})
}

// SetTabEmpty flags tab as having no data. An empty message selects the
// default one.
func (s *Store) SetTabEmpty(tab string, empty bool, message string) {
	s.modifyStatus(tab, func(st *TabStatus) {
		st.Empty = empty
		switch {
		case !empty:
			st.Message = ""
		case message == "":
			st.Message = defaultEmptyMessage
		default:
			st.Message = message
		}
	})
}

// MarkTabUpdated clears the stale flag and the loading state of tab.
func (s *Store) MarkTabUpdated(tab string) {
	t := tabs.Normalize(tab)
	now := s.now()
	s.update(func() bool {
		st := s.status[t]
		st.Loading = false
		st.UpdatedAt = now
		s.status[t] = st
		s.stale[t] = false
		return true
	})
}

// Invalidate marks the tabs of scope stale. Unknown scopes invalidate all
// tabs.
func (s *Store) Invalidate(scope string) {
	targets, ok := invalidationScopes[scope]
	if !ok {
		targets = invalidationScopes[ScopeAll]
	}
	s.update(func() bool {
		for _, t := range targets {
			s.stale[t] = true
		}
		return true
	})
}

// IsTabStale reports whether tab needs reloading.
func (s *Store) IsTabStale(tab string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale[tabs.Normalize(tab)]
}

// TabStatus returns the render state of tab.
func (s *Store) TabStatus(tab string) TabStatus {
	t := tabs.Normalize(tab)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[t]
	st.Stale = s.stale[t]
	return st
}

// SelectRefreshInterval returns the auto-refresh period of tab.
func (s *Store) SelectRefreshInterval(tab string) time.Duration {
	return s.intervals.For(tabs.Normalize(tab))
}

// Intervals returns the interval table in use.
func (s *Store) Intervals() tabs.IntervalTable {
	return s.intervals
}

// MonitoringEmpty reports whether the monitoring tab has nothing to show: no
// recent events, no bans and no maze hits.
func (s *Store) MonitoringEmpty() bool {
	s.mu.Lock()
	events := s.snapshots[SnapshotEvents]
	bans := s.snapshots[SnapshotBans]
	maze := s.snapshots[SnapshotMaze]
	s.mu.Unlock()

	var ev struct {
		RecentEvents []json.RawMessage `json:"recent_events"`
	}
	var bn struct {
		Bans []json.RawMessage `json:"bans"`
	}
	var mz struct {
		TotalHits float64 `json:"total_hits"`
	}
	// Malformed payloads count as empty.
	_ = json.Unmarshal(events, &ev)
	_ = json.Unmarshal(bans, &bn)
	_ = json.Unmarshal(maze, &mz)
	return len(ev.RecentEvents) == 0 && len(bn.Bans) == 0 && mz.TotalHits == 0
}
