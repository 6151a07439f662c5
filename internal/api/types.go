package api

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Analytics is the headline counters block.
type Analytics struct {
	BanCount int    `json:"ban_count"`
	TestMode bool   `json:"test_mode"`
	FailMode string `json:"fail_mode"`
}

// Record is a loosely typed server object such as an event or a ban.
type Record map[string]any

// Field renders key as text, or "" when absent.
func (r Record) Field(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// TopIP is an (ip, count) pair.
type TopIP struct {
	IP    string
	Count int
}

// UnmarshalJSON decodes the server's [ip, count] tuple.
func (t *TopIP) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("top ip: want [ip, count], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &t.IP); err != nil {
		return err
	}
	var n float64
	if err := json.Unmarshal(pair[1], &n); err != nil {
		return err
	}
	t.Count = int(n)
	return nil
}

// Events is the recent activity summary.
type Events struct {
	RecentEvents []Record       `json:"recent_events"`
	EventCounts  map[string]int `json:"event_counts"`
	TopIPs       []TopIP        `json:"top_ips"`
	UniqueIPs    int            `json:"unique_ips"`
}

// Bans is the active ban list.
type Bans struct {
	Bans []Record `json:"bans"`
}

// Maze summarizes tarpit activity.
type Maze struct {
	TotalHits      int `json:"total_hits"`
	UniqueCrawlers int `json:"unique_crawlers"`
	MazeAutoBans   int `json:"maze_auto_bans"`
}

// Decode unmarshals a snapshot. An empty snapshot yields the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
