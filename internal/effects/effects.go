// Package effects supplies the dashboard runtime with its side-effect
// primitives: HTTP requests, timers, the clock, fragment navigation, page
// visibility, redirects and focus.
//
// Every primitive is a plain function field so tests can replace any one of
// them. New never shares state between bundles.
package effects

import (
	"context"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/shuma/dashboard/internal/navigation"
)

// frameInterval approximates one display refresh.
const frameInterval = 16 * time.Millisecond

// DefaultOrigin is used when no window is supplied.
const DefaultOrigin = "http://127.0.0.1:3000"

// Request is a single HTTP call issued through the Request effect.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Response is the buffered result of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// RequestFunc performs a network request.
type RequestFunc func(ctx context.Context, req Request) (*Response, error)

// WriteHashOptions controls WriteHashTab.
type WriteHashOptions struct {
	// Replace rewrites the current history entry instead of adding one.
	Replace bool
}

// Options configures New. Zero fields fall back to production behaviour.
type Options struct {
	Window *Window
	Page   *Page

	// HTTP is the client used by the default Request effect.
	HTTP *resty.Client

	Request                RequestFunc
	SetTimeout             SetTimerFunc
	ClearTimeout           ClearTimerFunc
	RequestAnimationFrame  func(fn func()) TimerID
	Now                    func() time.Time
	Redirect               func(path string)
	BuildLoginRedirectPath func() string
	FocusTab               func(tab string) bool
}

// Effects is a read-only capability bundle. Callers must not reassign its
// fields after construction.
type Effects struct {
	Request      RequestFunc
	SetTimer     SetTimerFunc
	ClearTimer   ClearTimerFunc
	RequestFrame func(fn func()) TimerID
	Now          func() time.Time

	ReadHashTab        func() string
	WriteHashTab       func(tab string, opts WriteHashOptions)
	OnHashChange       func(fn func()) func()
	OnVisibilityChange func(fn func()) func()
	IsPageVisible      func() bool

	Redirect               func(path string)
	BuildLoginRedirectPath func() string
	FocusTab               func(tab string) bool

	window *Window
	page   *Page
}

// New builds an effects bundle from opts.
func New(opts Options) *Effects {
	win := opts.Window
	if win == nil {
		win = NewWindow(DefaultOrigin, "")
	}
	page := opts.Page
	if page == nil {
		page = NewPage()
	}

	e := &Effects{window: win, page: page}

	e.Request = opts.Request
	if e.Request == nil {
		client := opts.HTTP
		if client == nil {
			client = resty.New()
		}
		e.Request = restyRequest(client)
	}

	e.SetTimer = opts.SetTimeout
	e.ClearTimer = opts.ClearTimeout
	if e.SetTimer == nil || e.ClearTimer == nil {
		timers := NewTimers()
		if e.SetTimer == nil {
			e.SetTimer = timers.Set
		}
		if e.ClearTimer == nil {
			e.ClearTimer = timers.Clear
		}
	}

	e.RequestFrame = opts.RequestAnimationFrame
	if e.RequestFrame == nil {
		setTimer := e.SetTimer
		e.RequestFrame = func(fn func()) TimerID {
			return setTimer(frameInterval, fn)
		}
	}

	e.Now = opts.Now
	if e.Now == nil {
		e.Now = time.Now
	}

	e.ReadHashTab = func() string {
		return strings.TrimPrefix(win.Hash(), "#")
	}
	e.WriteHashTab = func(tab string, wopts WriteHashOptions) {
		normalized := strings.TrimPrefix(tab, "#")
		if normalized == "" {
			return
		}
		next := "#" + normalized
		if win.Hash() == next {
			return
		}
		if wopts.Replace {
			pathname, search, _ := win.Location()
			win.ReplaceState(pathname + search + next)
			return
		}
		win.SetHash(normalized)
	}
	e.OnHashChange = win.OnHashChange
	e.OnVisibilityChange = page.OnVisibilityChange
	e.IsPageVisible = func() bool {
		return page.VisibilityState() != Hidden
	}

	e.Redirect = opts.Redirect
	if e.Redirect == nil {
		e.Redirect = func(path string) {
			if path == "" {
				path = navigation.LoginPath
			}
			win.Replace(path)
		}
	}

	e.BuildLoginRedirectPath = opts.BuildLoginRedirectPath
	if e.BuildLoginRedirectPath == nil {
		e.BuildLoginRedirectPath = func() string {
			return navigation.LoginRedirectPath(win.Location())
		}
	}

	e.FocusTab = opts.FocusTab
	if e.FocusTab == nil {
		e.FocusTab = func(tab string) bool {
			normalized := strings.TrimPrefix(tab, "#")
			if normalized == "" {
				return false
			}
			return page.Focus(FocusID(normalized))
		}
	}

	return e
}

// Window returns the window the bundle navigates.
func (e *Effects) Window() *Window { return e.window }

// Page returns the page the bundle observes.
func (e *Effects) Page() *Page { return e.page }

// FocusID is the focusable element id of a tab.
func FocusID(tab string) string {
	return "dashboard-tab-" + tab
}

func restyRequest(client *resty.Client) RequestFunc {
	return func(ctx context.Context, req Request) (*Response, error) {
		r := client.R().SetContext(ctx)
		for key, values := range req.Header {
			for _, v := range values {
				r.SetHeader(key, v)
			}
		}
		if req.Body != nil {
			r.SetBody(req.Body)
		}
		method := req.Method
		if method == "" {
			method = http.MethodGet
		}
		res, err := r.Execute(method, req.URL)
		if err != nil {
			return nil, err
		}
		return &Response{
			StatusCode: res.StatusCode(),
			Header:     res.Header(),
			Body:       res.Bytes(),
		}, nil
	}
}
