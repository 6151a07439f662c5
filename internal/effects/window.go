package effects

import (
	"strings"
	"sync"

	"github.com/shuma/dashboard/internal/navigation"
)

// Window models the addressable location of the dashboard: the current path,
// its query and fragment, a history stack and hashchange listeners.
type Window struct {
	mu sync.Mutex

	origin   string
	pathname string
	search   string
	hash     string

	history   []string
	redirects []string

	listeners    map[int]func()
	nextListener int
}

// NewWindow returns a window for origin positioned at path. An empty path
// opens the dashboard index.
func NewWindow(origin, path string) *Window {
	if path == "" {
		path = navigation.FallbackPath
	}
	w := &Window{
		origin:    strings.TrimRight(origin, "/"),
		listeners: make(map[int]func()),
	}
	w.pathname, w.search, w.hash = navigation.SplitPath(path)
	w.history = []string{w.hrefLocked()}
	return w
}

func (w *Window) hrefLocked() string {
	return w.pathname + w.search + w.hash
}

// Origin returns the scheme://host the window was opened on.
func (w *Window) Origin() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.origin
}

// Location returns pathname, search (with '?') and hash (with '#').
func (w *Window) Location() (pathname, search, hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathname, w.search, w.hash
}

// Hash returns the current fragment including the leading '#', or "".
func (w *Window) Hash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hash
}

// Href returns the current path with query and fragment.
func (w *Window) Href() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hrefLocked()
}

// SetHash navigates to a new fragment, adding a history entry and notifying
// hashchange listeners. Setting the current fragment does nothing.
func (w *Window) SetHash(fragment string) {
	next := "#" + strings.TrimPrefix(fragment, "#")
	if next == "#" {
		next = ""
	}

	w.mu.Lock()
	if w.hash == next {
		w.mu.Unlock()
		return
	}
	w.hash = next
	w.history = append(w.history, w.hrefLocked())
	listeners := w.snapshotListenersLocked()
	w.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// ReplaceState rewrites the current history entry without notifying
// listeners.
func (w *Window) ReplaceState(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pathname, w.search, w.hash = navigation.SplitPath(path)
	w.history[len(w.history)-1] = w.hrefLocked()
}

// Replace records a navigation away from the dashboard.
func (w *Window) Replace(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.redirects = append(w.redirects, path)
}

// History returns a copy of the history stack, oldest first.
func (w *Window) History() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.history))
	copy(out, w.history)
	return out
}

// Redirects returns every path passed to Replace.
func (w *Window) Redirects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.redirects))
	copy(out, w.redirects)
	return out
}

// OnHashChange registers fn for hashchange notifications and returns the
// function that removes it.
func (w *Window) OnHashChange(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	w.mu.Lock()
	id := w.nextListener
	w.nextListener++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

func (w *Window) snapshotListenersLocked() []func() {
	out := make([]func(), 0, len(w.listeners))
	for i := 0; i < w.nextListener; i++ {
		if fn, ok := w.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
