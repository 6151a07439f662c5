package store

import (
	"math"
	"sort"
	"time"

	"github.com/shuma/dashboard/internal/tabs"
)

// WindowSize is the number of samples kept for rolling refresh metrics.
const WindowSize = 20

// Metric summarizes a rolling window of millisecond samples.
type Metric struct {
	Last         float64
	Avg          float64
	P95          float64
	Max          float64
	Samples      int
	TotalSamples int
	Window       []float64
}

func roundMillis(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*100) / 100
}

func (m Metric) add(d time.Duration) Metric {
	value := roundMillis(float64(d) / float64(time.Millisecond))
	window := append(append([]float64(nil), m.Window...), value)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}

	var sum, peak float64
	for _, v := range window {
		sum += v
		if v > peak {
			peak = v
		}
	}
	return Metric{
		Last:         value,
		Avg:          roundMillis(sum / float64(len(window))),
		P95:          p95(window),
		Max:          roundMillis(peak),
		Samples:      len(window),
		TotalSamples: m.TotalSamples + 1,
		Window:       window,
	}
}

func p95(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return roundMillis(sorted[idx])
}

// RefreshTelemetry describes recent tab loads.
type RefreshTelemetry struct {
	LastTab      string
	LastReason   string
	UpdatedAt    time.Time
	FetchLatency Metric
	RenderTiming Metric
}

// PollingTelemetry describes the auto-refresh scheduler.
type PollingTelemetry struct {
	Skips            int
	Resumes          int
	LastSkipReason   string
	LastSkipAt       time.Time
	LastResumeReason string
	LastResumeAt     time.Time
	ActiveTab        string
	Interval         time.Duration
}

// Telemetry is the runtime telemetry snapshot.
type Telemetry struct {
	Refresh RefreshTelemetry
	Polling PollingTelemetry
}

func newTelemetry() Telemetry {
	return Telemetry{
		Refresh: RefreshTelemetry{LastTab: tabs.Default, LastReason: "init"},
		Polling: PollingTelemetry{ActiveTab: tabs.Default},
	}
}

// RefreshSample is one completed tab load.
type RefreshSample struct {
	Tab          string
	Reason       string
	FetchLatency time.Duration
	RenderTiming time.Duration
}

// Telemetry returns a copy of the runtime telemetry.
func (s *Store) Telemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.telemetry
	t.Refresh.FetchLatency.Window = append([]float64(nil), t.Refresh.FetchLatency.Window...)
	t.Refresh.RenderTiming.Window = append([]float64(nil), t.Refresh.RenderTiming.Window...)
	return t
}

// ResetTelemetry discards all telemetry.
func (s *Store) ResetTelemetry() {
	s.update(func() bool {
		s.telemetry = newTelemetry()
		return true
	})
}

// RecordRefreshMetrics adds a refresh sample to the rolling windows.
func (s *Store) RecordRefreshMetrics(sample RefreshSample) {
	reason := sample.Reason
	if reason == "" {
		reason = tabs.ReasonManual
	}
	now := s.now()
	s.update(func() bool {
		r := &s.telemetry.Refresh
		r.LastTab = tabs.Normalize(sample.Tab)
		r.LastReason = reason
		r.UpdatedAt = now
		r.FetchLatency = r.FetchLatency.add(sample.FetchLatency)
		r.RenderTiming = r.RenderTiming.add(sample.RenderTiming)
		return true
	})
}

// SetPollingContext records the tab and period the scheduler armed for.
func (s *Store) SetPollingContext(tab string, interval time.Duration) {
	s.update(func() bool {
		p := &s.telemetry.Polling
		p.ActiveTab = tabs.Normalize(tab)
		p.Interval = interval
		return true
	})
}

// RecordPollingSkip counts a scheduler pass that did not arm a timer.
func (s *Store) RecordPollingSkip(reason, tab string, interval time.Duration) {
	if reason == "" {
		reason = "unspecified"
	}
	now := s.now()
	s.update(func() bool {
		p := &s.telemetry.Polling
		p.Skips++
		p.LastSkipReason = reason
		p.LastSkipAt = now
		p.ActiveTab = tabs.Normalize(tab)
		p.Interval = interval
		return true
	})
}

// RecordPollingResume counts a scheduler pass that armed a timer.
func (s *Store) RecordPollingResume(reason, tab string, interval time.Duration) {
	if reason == "" {
		reason = "resume"
	}
	now := s.now()
	s.update(func() bool {
		p := &s.telemetry.Polling
		p.Resumes++
		p.LastResumeReason = reason
		p.LastResumeAt = now
		p.ActiveTab = tabs.Normalize(tab)
		p.Interval = interval
		return true
	})
}
