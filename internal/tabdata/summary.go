package tabdata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shuma/dashboard/internal/api"
	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabs"
)

// Titles are the display names of the tabs.
var Titles = map[string]string{
	tabs.Monitoring: "Monitoring",
	tabs.IPBans:     "IP Bans",
	tabs.Status:     "Status",
	tabs.Config:     "Config",
	tabs.Tuning:     "Tuning",
}

// maxRows caps list sections.
const maxRows = 10

// Summarize renders the snapshots behind tab as plain text lines. Renderers
// decorate the lines; they do not decode snapshots themselves.
func Summarize(s *store.Store, tab string) []string {
	switch tabs.Normalize(tab) {
	case tabs.IPBans:
		return summarizeBans(s)
	case tabs.Status, tabs.Config, tabs.Tuning:
		return summarizeConfig(s)
	default:
		return summarizeMonitoring(s)
	}
}

func summarizeMonitoring(s *store.Store) []string {
	analytics, _ := api.Decode[api.Analytics](s.Snapshot(store.SnapshotAnalytics))
	events, _ := api.Decode[api.Events](s.Snapshot(store.SnapshotEvents))
	maze, _ := api.Decode[api.Maze](s.Snapshot(store.SnapshotMaze))

	lines := []string{
		fmt.Sprintf("Active bans: %d", analytics.BanCount),
		fmt.Sprintf("Test mode: %s   Fail mode: %s", onOff(analytics.TestMode), orDash(analytics.FailMode)),
		fmt.Sprintf("Unique IPs (24h): %d", events.UniqueIPs),
		fmt.Sprintf("Maze hits: %d   Crawlers: %d   Auto bans: %d", maze.TotalHits, maze.UniqueCrawlers, maze.MazeAutoBans),
	}

	if len(events.EventCounts) > 0 {
		lines = append(lines, "", "Events by type:")
		for _, k := range sortedKeys(events.EventCounts) {
			lines = append(lines, fmt.Sprintf("  %-20s %d", k, events.EventCounts[k]))
		}
	}
	if len(events.TopIPs) > 0 {
		lines = append(lines, "", "Top IPs:")
		for i, ip := range events.TopIPs {
			if i == maxRows {
				break
			}
			lines = append(lines, fmt.Sprintf("  %-40s %d", ip.IP, ip.Count))
		}
	}
	if len(events.RecentEvents) > 0 {
		lines = append(lines, "", "Recent events:")
		for i, ev := range events.RecentEvents {
			if i == maxRows {
				break
			}
			lines = append(lines, fmt.Sprintf("  %s  %-16s %-40s %s",
				formatTimestamp(ev.Field("ts")), orDash(ev.Field("event")), orDash(ev.Field("ip")), ev.Field("reason")))
		}
	}
	return lines
}

func summarizeBans(s *store.Store) []string {
	bans, _ := api.Decode[api.Bans](s.Snapshot(store.SnapshotBans))
	if len(bans.Bans) == 0 {
		return []string{"No active bans."}
	}
	lines := []string{fmt.Sprintf("%d active ban(s):", len(bans.Bans))}
	for _, b := range bans.Bans {
		lines = append(lines, fmt.Sprintf("  %-40s %-20s expires %s",
			orDash(b.Field("ip")), orDash(b.Field("reason")), formatTimestamp(b.Field("expires"))))
	}
	return lines
}

func summarizeConfig(s *store.Store) []string {
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(s.Snapshot(store.SnapshotConfig), &cfg); err != nil || len(cfg) == 0 {
		return nil
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-32s %s", k, string(cfg[k])))
	}
	return lines
}

// formatTimestamp renders unix seconds as UTC; other values pass through.
func formatTimestamp(raw string) string {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return orDash(raw)
	}
	return time.Unix(secs, 0).UTC().Format("2006-01-02 15:04:05Z")
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
