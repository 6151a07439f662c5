// Package console is the legacy line-oriented renderer. Tab changes go
// through the window fragment, so the tab coordinator stays in charge.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shuma/dashboard/internal/adapters"
	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabdata"
	"github.com/shuma/dashboard/internal/tabs"
)

// Dashboard is the mounted runtime as seen by the console.
type Dashboard interface {
	Window() *effects.Window
	Page() *effects.Page
	Store() *store.Store
	Registry() *adapters.Registry
	Coordinator() *tabs.TabCoordinator
	Ban(ctx context.Context, ip string, d time.Duration) error
	Unban(ctx context.Context, ip string) error
	// Wait blocks until refreshes started by tab changes finish.
	Wait()
}

// Result describes how the session ended.
type Result struct {
	LoggedOut bool
}

const helpText = `commands:
  #<tab>             open a tab (monitoring, ip-bans, status, config, tuning)
  next | prev        move to the adjacent tab
  refresh            reload the active tab
  hide | show        pause or resume auto-refresh
  ban <ip> [dur]     ban an address (default 1h, e.g. 30m)
  unban <ip>         lift a ban
  logout             end the admin session
  quit               exit`

// Run reads commands from in until quit, logout, EOF or ctx ends.
func Run(ctx context.Context, d Dashboard, in io.Reader, out io.Writer) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &console{d: d, out: out}
	c.printTab()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return Result{}, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return Result{}, fmt.Errorf("read command: %w", err)
					}
				default:
				}
				return Result{}, nil
			}
			res, stop := c.exec(ctx, line)
			if stop {
				return res, nil
			}
		}
	}
}

type console struct {
	d   Dashboard
	out io.Writer
}

func (c *console) exec(ctx context.Context, line string) (Result, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{}, false
	}
	cmd := strings.ToLower(fields[0])

	switch {
	case strings.HasPrefix(cmd, "#"):
		c.d.Window().SetHash(strings.TrimPrefix(cmd, "#"))
		c.d.Wait()
		c.printTab()
	case cmd == "next" || cmd == "prev":
		offset := 1
		if cmd == "prev" {
			offset = -1
		}
		if coord := c.d.Coordinator(); coord != nil {
			coord.FocusByOffset(offset)
		}
		c.d.Wait()
		c.printTab()
	case cmd == "refresh":
		tab := c.d.Registry().ActiveTab()
		if err := c.d.Registry().RefreshTab(ctx, tab, tabs.ReasonManual, tabs.RefreshOptions{Force: true}); err != nil {
			fmt.Fprintf(c.out, "refresh failed: %v\n", err)
		}
		c.d.Wait()
		c.printTab()
	case cmd == "hide":
		c.d.Page().SetVisible(false)
		fmt.Fprintln(c.out, "auto-refresh paused")
	case cmd == "show":
		c.d.Page().SetVisible(true)
		fmt.Fprintln(c.out, "auto-refresh resumed")
	case cmd == "ban":
		c.ban(ctx, fields[1:])
	case cmd == "unban":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: unban <ip>")
			break
		}
		if err := c.d.Unban(ctx, fields[1]); err != nil {
			fmt.Fprintf(c.out, "unban failed: %v\n", err)
			break
		}
		c.d.Wait()
		c.printTab()
	case cmd == "logout":
		c.d.Registry().LogoutSession(ctx)
		fmt.Fprintln(c.out, "Logged out")
		return Result{LoggedOut: true}, true
	case cmd == "quit" || cmd == "exit":
		return Result{}, true
	case cmd == "help" || cmd == "?":
		fmt.Fprintln(c.out, helpText)
	case cmd == "status":
		c.printTab()
	default:
		fmt.Fprintf(c.out, "unknown command %q (try help)\n", fields[0])
	}
	return Result{}, false
}

func (c *console) ban(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "usage: ban <ip> [duration]")
		return
	}
	var d time.Duration
	if len(args) > 1 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil || parsed <= 0 {
			fmt.Fprintf(c.out, "invalid duration %q\n", args[1])
			return
		}
		d = parsed
	}
	if err := c.d.Ban(ctx, args[0], d); err != nil {
		fmt.Fprintf(c.out, "ban failed: %v\n", err)
		return
	}
	c.d.Wait()
	c.printTab()
}

func (c *console) printTab() {
	s := c.d.Store()
	tab := s.ActiveTab()
	st := s.TabStatus(tab)

	fmt.Fprintf(c.out, "== %s ==\n", tabdata.Titles[tab])
	switch {
	case st.Loading:
		fmt.Fprintln(c.out, st.Message)
		return
	case st.Error != "":
		fmt.Fprintf(c.out, "error: %s\n", st.Error)
		return
	case st.Empty:
		fmt.Fprintln(c.out, st.Message)
		return
	}
	for _, line := range tabdata.Summarize(s, tab) {
		fmt.Fprintln(c.out, line)
	}
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(c.out, "(updated %s)\n", st.UpdatedAt.Local().Format("15:04:05"))
	}
}
