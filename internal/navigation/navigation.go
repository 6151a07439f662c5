// Package navigation holds the dashboard's path rules: where login sends the
// user afterwards, and how tabs are addressed through the URL fragment.
package navigation

import (
	"net/url"
	"strings"
)

const (
	// DashboardPrefix is the only path prefix a post-login redirect may target.
	DashboardPrefix = "/dashboard/"
	// FallbackPath is used whenever a requested next path is rejected.
	FallbackPath = "/dashboard/index.html"
	// LoginPath is the login page.
	LoginPath = "/dashboard/login.html"
)

// SafeNextPath validates a "next" query value against origin. Cross-origin,
// malformed, or non-dashboard values yield FallbackPath; accepted values keep
// their path, query and fragment.
func SafeNextPath(raw, origin string) string {
	if raw == "" {
		return FallbackPath
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return FallbackPath
	}
	base, err := url.Parse(origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return FallbackPath
	}
	ref, err := url.Parse(decoded)
	if err != nil {
		return FallbackPath
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != base.Scheme || resolved.Host != base.Host {
		return FallbackPath
	}
	if !strings.HasPrefix(resolved.Path, DashboardPrefix) {
		return FallbackPath
	}

	out := resolved.EscapedPath()
	if resolved.RawQuery != "" {
		out += "?" + resolved.RawQuery
	}
	if resolved.Fragment != "" {
		out += "#" + resolved.EscapedFragment()
	}
	return out
}

// LoginRedirectPath builds the login URL that returns to the given location.
func LoginRedirectPath(pathname, search, hash string) string {
	if pathname == "" {
		pathname = FallbackPath
	}
	next := url.QueryEscape(pathname + search + hash)
	return LoginPath + "?next=" + next
}

// TabFromFragment returns the raw tab token of a path's fragment, without the
// leading '#'. It does not normalize.
func TabFromFragment(path string) string {
	idx := strings.IndexByte(path, '#')
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// SplitPath breaks an absolute dashboard path into pathname, search (with '?')
// and hash (with '#').
func SplitPath(path string) (pathname, search, hash string) {
	if idx := strings.IndexByte(path, '#'); idx >= 0 {
		hash = path[idx:]
		path = path[:idx]
	}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		search = path[idx:]
		path = path[:idx]
	}
	return path, search, hash
}
