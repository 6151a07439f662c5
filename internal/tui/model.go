// Package tui is the native terminal renderer. It drives the mounted runtime
// through the external tab pipeline and re-renders on every store change.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/store"
	"github.com/shuma/dashboard/internal/tabdata"
	"github.com/shuma/dashboard/internal/tabs"
)

// Runtime is the slice of the mount controller the TUI drives.
type Runtime interface {
	SetActiveTab(ctx context.Context, tab string) string
	ActiveTab(ctx context.Context) string
	RefreshTab(ctx context.Context, tab, reason string, opts tabs.RefreshOptions) error
	LogoutSession(ctx context.Context)
}

// Options configures the TUI.
type Options struct {
	Runtime  Runtime
	Store    *store.Store
	Page     *effects.Page
	Endpoint string
}

type storeChangedMsg struct{}

type actionDoneMsg struct {
	what string
	err  error
}

type loggedOutMsg struct{}

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	runtime Runtime
	store   *store.Store
	page    *effects.Page

	endpoint string
	keys     keyMap
	theme    theme
	spinner  spinner.Model
	spinning bool

	width     int
	active    string
	notice    string
	noticeErr bool
	loggedOut bool
}

// New returns the initial model.
func New(ctx context.Context, opts Options) Model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := Model{
		ctx:      ctx,
		runtime:  opts.Runtime,
		store:    opts.Store,
		page:     opts.Page,
		endpoint: opts.Endpoint,
		keys:     defaultKeys(),
		theme:    defaultTheme(),
		spinner:  spin,
		active:   tabs.Default,
	}
	if m.store != nil {
		m.active = m.store.ActiveTab()
	}
	m.spinner.Style = m.theme.Header
	return m
}

// LoggedOut reports whether the user logged out before quitting.
func (m Model) LoggedOut() bool { return m.loggedOut }

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return storeChangedMsg{} }
}

func (m *Model) syncSpinner() tea.Cmd {
	if m.store == nil || !m.store.TabStatus(m.active).Loading || m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.FocusMsg:
		return m, m.setVisible(true)

	case tea.BlurMsg:
		return m, m.setVisible(false)

	case storeChangedMsg:
		if m.store != nil {
			m.active = m.store.ActiveTab()
		}
		return m, m.syncSpinner()

	case spinner.TickMsg:
		if m.store == nil || !m.store.TabStatus(m.active).Loading {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case actionDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
			m.noticeErr = true
		} else {
			m.notice = ""
			m.noticeErr = false
		}
		return m, nil

	case loggedOutMsg:
		m.loggedOut = true
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		return m, m.activate(offsetTab(m.active, 1))
	case key.Matches(msg, m.keys.Prev):
		return m, m.activate(offsetTab(m.active, -1))
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.Logout):
		m.notice = "Logging out..."
		m.noticeErr = false
		return m, m.logout()
	}
	if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(tabs.All) {
		return m, m.activate(tabs.All[n-1])
	}
	return m, nil
}

// Runtime calls happen in commands: they write to the store, whose
// notifications are delivered back to this loop.

func (m Model) setVisible(visible bool) tea.Cmd {
	page := m.page
	if page == nil {
		return nil
	}
	return func() tea.Msg {
		page.SetVisible(visible)
		return nil
	}
}

func (m Model) activate(tab string) tea.Cmd {
	rt, ctx := m.runtime, m.ctx
	if rt == nil {
		return nil
	}
	return func() tea.Msg {
		rt.SetActiveTab(ctx, tab)
		return nil
	}
}

func (m Model) refresh() tea.Cmd {
	rt, ctx, tab := m.runtime, m.ctx, m.active
	if rt == nil {
		return nil
	}
	return func() tea.Msg {
		err := rt.RefreshTab(ctx, tab, tabs.ReasonManual, tabs.RefreshOptions{Force: true})
		return actionDoneMsg{what: "Refresh", err: err}
	}
}

func (m Model) logout() tea.Cmd {
	rt, ctx := m.runtime, m.ctx
	if rt == nil {
		return func() tea.Msg { return loggedOutMsg{} }
	}
	return func() tea.Msg {
		rt.LogoutSession(ctx)
		return loggedOutMsg{}
	}
}

func offsetTab(current string, offset int) string {
	n := len(tabs.All)
	i := tabs.Index(current)
	if i < 0 {
		i = 0
	}
	return tabs.All[((i+offset)%n+n)%n]
}

func (m Model) View() string {
	var b strings.Builder

	title := "Shuma dashboard"
	if m.endpoint != "" {
		title += "  " + m.theme.Muted.Render(m.endpoint)
	}
	b.WriteString(m.theme.Header.Render(title))
	b.WriteString("\n")

	bar := make([]string, 0, len(tabs.All))
	for i, tab := range tabs.All {
		label := fmt.Sprintf("%d %s", i+1, tabdata.Titles[tab])
		if tab == m.active {
			bar = append(bar, m.theme.ActiveTab.Render(label))
		} else {
			bar = append(bar, m.theme.Tab.Render(label))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, bar...))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")

	panel := m.theme.Panel
	if m.width > 4 {
		panel = panel.Width(m.width - 2)
	}
	b.WriteString(panel.Render(m.body()))
	b.WriteString("\n")

	if m.notice != "" {
		style := m.theme.Success
		if m.noticeErr {
			style = m.theme.Danger
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.help())
	return b.String()
}

func (m Model) statusLine() string {
	if m.store == nil {
		return ""
	}
	st := m.store.TabStatus(m.active)
	switch {
	case st.Loading:
		return m.spinner.View() + " " + m.theme.Muted.Render(st.Message)
	case st.Error != "":
		return m.theme.Danger.Render("Error: " + st.Error)
	case !st.UpdatedAt.IsZero():
		line := "Updated " + st.UpdatedAt.Local().Format("15:04:05")
		if st.Stale {
			line += " (stale)"
		}
		if !m.store.Session().Authenticated {
			return m.theme.Alert.Render(line + "  session expired")
		}
		return m.theme.Muted.Render(line)
	default:
		return m.theme.Muted.Render("Waiting for data...")
	}
}

func (m Model) body() string {
	if m.store == nil {
		return ""
	}
	st := m.store.TabStatus(m.active)
	if st.Empty {
		return m.theme.Muted.Render(st.Message)
	}
	lines := tabdata.Summarize(m.store, m.active)
	if len(lines) == 0 {
		return m.theme.Muted.Render("No data.")
	}
	return strings.Join(lines, "\n")
}

func (m Model) help() string {
	parts := make([]string, 0, len(m.keys.help())+1)
	parts = append(parts, "1-5 tabs")
	for _, k := range m.keys.help() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return m.theme.Muted.Render(strings.Join(parts, " • "))
}
