package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Result describes how the TUI ended.
type Result struct {
	LoggedOut bool
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) (Result, error) {
	p := tea.NewProgram(
		New(ctx, opts),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)

	// Store notifications arrive from refresh goroutines. They are coalesced
	// so a burst of updates never blocks the writer.
	done := make(chan struct{})
	defer close(done)
	if opts.Store != nil {
		changed := make(chan struct{}, 1)
		unsubscribe := opts.Store.Subscribe(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
		go func() {
			for {
				select {
				case <-done:
					return
				case <-changed:
					p.Send(storeChangedMsg{})
				}
			}
		}()
	}

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return Result{}, fmt.Errorf("run terminal UI: %w", err)
	}
	m, _ := final.(Model)
	return Result{LoggedOut: m.LoggedOut()}, nil
}
