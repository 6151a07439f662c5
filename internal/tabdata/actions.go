package tabdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabs"
)

// Refresh reasons issued after ban list edits.
const (
	ReasonBanSave   = "ban-save"
	ReasonUnbanSave = "unban-save"
)

// DefaultBanDuration is used when Ban is given no duration.
const DefaultBanDuration = time.Hour

// BanAPI is the write side of the ban list.
type BanAPI interface {
	Ban(ctx context.Context, ip string, durationSeconds int, reason string) error
	Unban(ctx context.Context, ip string) error
}

// Actions edits the ban list and refreshes the ip-bans tab afterwards.
type Actions struct {
	API     BanAPI
	Store   *store.Store
	Refresh tabs.RefreshFunc
}

// Ban bans ip for d.
func (a *Actions) Ban(ctx context.Context, ip string, d time.Duration) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("ban: ip is required")
	}
	if d <= 0 {
		d = DefaultBanDuration
	}
	if err := a.API.Ban(ctx, ip, int(d/time.Second), ""); err != nil {
		return fmt.Errorf("ban %s: %w", ip, err)
	}
	return a.after(ctx, ReasonBanSave)
}

// Unban lifts the ban on ip.
func (a *Actions) Unban(ctx context.Context, ip string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("unban: ip is required")
	}
	if err := a.API.Unban(ctx, ip); err != nil {
		return fmt.Errorf("unban %s: %w", ip, err)
	}
	return a.after(ctx, ReasonUnbanSave)
}

func (a *Actions) after(ctx context.Context, reason string) error {
	if a.Store != nil {
		a.Store.Invalidate(tabs.IPBans)
	}
	if a.Refresh == nil {
		return nil
	}
	return a.Refresh(ctx, tabs.IPBans, reason, tabs.RefreshOptions{})
}
