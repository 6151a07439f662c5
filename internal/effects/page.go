package effects

import "sync"

// Visibility mirrors the document visibility state.
type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "hidden"
)

// DatasetActiveTab is the dataset key mirroring the active tab.
const DatasetActiveTab = "activeDashboardTab"

// Page models the rendered document: whether it is currently visible, a small
// dataset used by renderers, and the focusable tab elements.
type Page struct {
	mu sync.Mutex

	hidden  bool
	dataset map[string]string

	focusables map[string]func()
	focused    string

	listeners    map[int]func()
	nextListener int
}

// NewPage returns a visible page.
func NewPage() *Page {
	return &Page{
		dataset:    make(map[string]string),
		focusables: make(map[string]func()),
		listeners:  make(map[int]func()),
	}
}

// VisibilityState reports the current visibility.
func (p *Page) VisibilityState() Visibility {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hidden {
		return Hidden
	}
	return Visible
}

// SetVisible updates visibility and notifies listeners when it changed.
func (p *Page) SetVisible(visible bool) {
	p.mu.Lock()
	if p.hidden == !visible {
		p.mu.Unlock()
		return
	}
	p.hidden = !visible
	listeners := make([]func(), 0, len(p.listeners))
	for i := 0; i < p.nextListener; i++ {
		if fn, ok := p.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// OnVisibilityChange registers fn and returns the function that removes it.
func (p *Page) OnVisibilityChange(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// ListenerCount returns the number of registered visibility listeners.
func (p *Page) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// SetDataset stores a dataset attribute.
func (p *Page) SetDataset(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataset[key] = value
}

// Dataset reads a dataset attribute.
func (p *Page) Dataset(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataset[key]
}

// RegisterFocusable makes id focusable. onFocus may be nil. The returned
// function unregisters it.
func (p *Page) RegisterFocusable(id string, onFocus func()) func() {
	p.mu.Lock()
	if onFocus == nil {
		onFocus = func() {}
	}
	p.focusables[id] = onFocus
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.focusables, id)
		if p.focused == id {
			p.focused = ""
		}
		p.mu.Unlock()
	}
}

// Focus focuses id and reports whether such an element exists.
func (p *Page) Focus(id string) bool {
	p.mu.Lock()
	fn, ok := p.focusables[id]
	if ok {
		p.focused = id
	}
	p.mu.Unlock()

	if ok {
		fn()
	}
	return ok
}

// Focused returns the id of the focused element, if any.
func (p *Page) Focused() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}
