// Package tabs defines the dashboard tab set and the runtimes that decide
// which tab is active.
package tabs

import (
	"fmt"
	"strings"
	"time"
)

// Tab identifiers.
const (
	Monitoring = "monitoring"
	IPBans     = "ip-bans"
	Status     = "status"
	Config     = "config"
	Tuning     = "tuning"

	// Default is the tab shown when nothing else is requested.
	Default = Monitoring
)

// All lists the tabs in display order.
var All = []string{Monitoring, IPBans, Status, Config, Tuning}

// Normalize maps a requested tab to a known identifier. Unknown values map to
// Default. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if IsKnown(candidate) {
		return candidate
	}
	return Default
}

// IsKnown reports whether tab is an exact tab identifier.
func IsKnown(tab string) bool {
	for _, t := range All {
		if t == tab {
			return true
		}
	}
	return false
}

// Index returns the display position of tab, or -1.
func Index(tab string) int {
	for i, t := range All {
		if t == tab {
			return i
		}
	}
	return -1
}

// fallbackInterval is used when a table has neither the tab nor monitoring.
const fallbackInterval = 30 * time.Second

// IntervalTable maps tabs to their auto-refresh period.
type IntervalTable map[string]time.Duration

// DefaultIntervals returns the shipped refresh cadence.
func DefaultIntervals() IntervalTable {
	return IntervalTable{
		Monitoring: 30 * time.Second,
		IPBans:     45 * time.Second,
		Status:     60 * time.Second,
		Config:     60 * time.Second,
		Tuning:     60 * time.Second,
	}
}

// For returns the period for tab, falling back to the monitoring entry.
func (t IntervalTable) For(tab string) time.Duration {
	if d, ok := t[tab]; ok && d > 0 {
		return d
	}
	if d, ok := t[Monitoring]; ok && d > 0 {
		return d
	}
	return fallbackInterval
}

// Validate checks that the table defines monitoring and only positive periods.
func (t IntervalTable) Validate() error {
	if _, ok := t[Monitoring]; !ok {
		return fmt.Errorf("refresh interval table must define %q", Monitoring)
	}
	for tab, d := range t {
		if d <= 0 {
			return fmt.Errorf("refresh interval for %q must be positive, got %s", tab, d)
		}
	}
	return nil
}

// FromMillis builds a table from millisecond values.
func FromMillis(ms map[string]int64) IntervalTable {
	out := make(IntervalTable, len(ms))
	for tab, v := range ms {
		out[strings.ToLower(strings.TrimSpace(tab))] = time.Duration(v) * time.Millisecond
	}
	return out
}

// Merge returns a copy of t with overrides applied.
func (t IntervalTable) Merge(overrides IntervalTable) IntervalTable {
	out := make(IntervalTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
