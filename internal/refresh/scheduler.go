// Package refresh implements the visibility-aware auto-refresh loop.
//
// The scheduler holds at most one pending timer. Each tick refreshes the
// active tab and then re-arms itself, so the next delay is always computed
// from the tab that is active at that moment.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// ErrMissingTimers is returned by New when the effects cannot arm or cancel
// timers.
var ErrMissingTimers = errors.New("auto-refresh requires effects with SetTimer and ClearTimer")

// Polling telemetry reasons.
const (
	SkipUnauthenticated    = "unauthenticated"
	SkipPageHidden         = "page-hidden"
	ResumeVisibility       = "visibility-resume"
	ResumeCycle            = "cycle"
	ResumeConditionRecheck = "condition-recheck"
)

// PollingRecorder receives scheduler telemetry.
type PollingRecorder interface {
	SetPollingContext(tab string, interval time.Duration)
	RecordPollingSkip(reason, tab string, interval time.Duration)
	RecordPollingResume(reason, tab string, interval time.Duration)
}

// Options configures a Scheduler.
type Options struct {
	Effects    *effects.Effects
	Intervals  tabs.IntervalTable
	DefaultTab string
	Normalize  func(string) string

	ActiveTab          func() string
	HasValidAPIContext func() bool
	RefreshForTab      tabs.RefreshFunc

	// Recorder is optional.
	Recorder PollingRecorder
}

// Scheduler is the auto-refresh loop.
type Scheduler struct {
	fx         *effects.Effects
	intervals  tabs.IntervalTable
	defaultTab string
	normalize  func(string) string

	activeTab     func() string
	hasAPIContext func() bool
	refreshForTab tabs.RefreshFunc
	recorder      PollingRecorder

	// ctx bounds refreshes issued by the loop; cancel runs on Destroy.
	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	timer            effects.TimerID
	gen              uint64
	visible          bool
	unbindVisibility func()
	destroyed        bool
}

// New validates opts and returns an idle scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Effects == nil || opts.Effects.SetTimer == nil || opts.Effects.ClearTimer == nil {
		return nil, ErrMissingTimers
	}

	s := &Scheduler{
		fx:            opts.Effects,
		intervals:     opts.Intervals,
		defaultTab:    opts.DefaultTab,
		normalize:     opts.Normalize,
		activeTab:     opts.ActiveTab,
		hasAPIContext: opts.HasValidAPIContext,
		refreshForTab: opts.RefreshForTab,
		recorder:      opts.Recorder,
		visible:       true,
	}
	if s.intervals == nil {
		s.intervals = tabs.DefaultIntervals()
	}
	if s.defaultTab == "" {
		s.defaultTab = tabs.Default
	}
	if s.normalize == nil {
		s.normalize = func(v string) string {
			if v == "" {
				return s.defaultTab
			}
			return v
		}
	}
	if s.activeTab == nil {
		s.activeTab = func() string { return s.defaultTab }
	}
	if s.hasAPIContext == nil {
		s.hasAPIContext = func() bool { return false }
	}
	if s.refreshForTab == nil {
		s.refreshForTab = func(context.Context, string, string, tabs.RefreshOptions) error { return nil }
	}
	if opts.Effects.IsPageVisible != nil {
		s.visible = opts.Effects.IsPageVisible()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Scheduler) currentTab() string {
	return s.normalize(s.activeTab())
}

// Schedule re-arms the loop: it cancels any pending timer and, when the page
// is visible and an API context exists, arms exactly one new timer.
func (s *Scheduler) Schedule() {
	s.schedule(ResumeCycle)
}

func (s *Scheduler) schedule(resumeReason string) {
	s.Clear()

	tab := s.currentTab()
	interval := s.intervals.For(tab)

	if !s.hasAPIContext() {
		s.recordSkip(SkipUnauthenticated, tab, interval)
		return
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if !s.visible {
		s.mu.Unlock()
		s.recordSkip(SkipPageHidden, tab, interval)
		return
	}
	// A concurrent Schedule may have armed since Clear above.
	if s.timer != 0 {
		s.fx.ClearTimer(s.timer)
		s.timer = 0
	}
	s.gen++
	gen := s.gen
	s.timer = s.fx.SetTimer(interval, func() { s.fire(gen) })
	s.mu.Unlock()

	logger.Tracef("auto-refresh: armed %s in %s", tab, interval)
	if s.recorder != nil {
		s.recorder.SetPollingContext(tab, interval)
		s.recorder.RecordPollingResume(resumeReason, tab, interval)
	}
}

func (s *Scheduler) recordSkip(reason, tab string, interval time.Duration) {
	logger.Tracef("auto-refresh: skipped (%s)", reason)
	if s.recorder != nil {
		s.recorder.RecordPollingSkip(reason, tab, interval)
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.timer == 0 || s.destroyed {
		// Superseded or cancelled after the timer was dispatched.
		s.mu.Unlock()
		return
	}
	s.timer = 0
	visible := s.visible
	s.mu.Unlock()

	if visible && s.hasAPIContext() {
		tab := s.currentTab()
		if err := s.refreshForTab(s.ctx, tab, tabs.ReasonAutoRefresh, tabs.RefreshOptions{}); err != nil {
			logger.Warnf("auto-refresh of %s failed: %v", tab, err)
		}
		s.schedule(ResumeCycle)
		return
	}
	s.schedule(ResumeConditionRecheck)
}

// Clear cancels the pending timer, if any.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	id := s.timer
	s.timer = 0
	s.mu.Unlock()

	if id != 0 {
		s.fx.ClearTimer(id)
	}
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != 0
}

// IsPageVisible returns the cached visibility flag.
func (s *Scheduler) IsPageVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// BindVisibility follows page visibility: hidden cancels the timer, visible
// re-arms it. Binding twice replaces the previous listener.
func (s *Scheduler) BindVisibility() {
	if s.fx.OnVisibilityChange == nil {
		return
	}
	s.UnbindVisibility()
	unbind := s.fx.OnVisibilityChange(s.onVisibilityChange)

	s.mu.Lock()
	s.unbindVisibility = unbind
	s.mu.Unlock()
}

// UnbindVisibility stops following page visibility.
func (s *Scheduler) UnbindVisibility() {
	s.mu.Lock()
	unbind := s.unbindVisibility
	s.unbindVisibility = nil
	s.mu.Unlock()

	if unbind != nil {
		unbind()
	}
}

func (s *Scheduler) onVisibilityChange() {
	visible := true
	if s.fx.IsPageVisible != nil {
		visible = s.fx.IsPageVisible()
	}
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()

	if visible {
		s.schedule(ResumeVisibility)
		return
	}
	s.Clear()
	s.recordSkip(SkipPageHidden, s.currentTab(), s.intervals.For(s.currentTab()))
}

// Destroy cancels the timer, stops following visibility and prevents any
// further arming. In-flight refreshes see their context cancelled.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	s.Clear()
	s.UnbindVisibility()
	s.cancel()
}
