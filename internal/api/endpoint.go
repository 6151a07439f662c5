package api

import (
	"net"
	"net/url"
	"strings"
	"sync"
	"unicode"
)

// EndpointOverrideParam is the query parameter a loopback dashboard may use
// to point at a different loopback API.
const EndpointOverrideParam = "api_endpoint"

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// IsLoopbackHost reports whether host names the local machine.
func IsLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && (ip.Equal(net.IPv4(127, 0, 0, 1)) || ip.Equal(net.IPv6loopback))
}

// ParseEndpointURL validates an admin API base URL. Only http and https are
// accepted; whitespace is removed and trailing slashes are trimmed. ok is
// false for anything else.
func ParseEndpointURL(raw string) (endpoint string, ok bool) {
	sanitized := stripSpace(raw)
	if sanitized == "" {
		return "", false
	}
	u, err := url.Parse(sanitized)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if u.Hostname() == "" {
		return "", false
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + strings.ToLower(u.Host) + path, true
}

// EndpointResolver resolves the admin API endpoint for a dashboard opened at
// a given location. The result is computed once.
type EndpointResolver struct {
	origin string
	search string

	once     sync.Once
	endpoint string
}

// NewEndpointResolver returns a resolver for a dashboard served from origin
// with the given query string (with or without the leading '?').
func NewEndpointResolver(origin, search string) *EndpointResolver {
	return &EndpointResolver{origin: origin, search: strings.TrimPrefix(search, "?")}
}

// Endpoint returns the resolved admin API base URL.
func (r *EndpointResolver) Endpoint() string {
	r.once.Do(func() {
		r.endpoint = r.resolve()
	})
	return r.endpoint
}

func (r *EndpointResolver) resolve() string {
	endpoint, ok := ParseEndpointURL(r.origin)
	if !ok {
		endpoint = r.origin
	}

	originURL, err := url.Parse(stripSpace(r.origin))
	if err != nil || !IsLoopbackHost(originURL.Hostname()) {
		return endpoint
	}
	params, err := url.ParseQuery(r.search)
	if err != nil {
		return endpoint
	}
	override := stripSpace(params.Get(EndpointOverrideParam))
	if override == "" {
		return endpoint
	}
	parsed, ok := ParseEndpointURL(override)
	if !ok {
		return endpoint
	}
	overrideURL, err := url.Parse(parsed)
	if err != nil || !IsLoopbackHost(overrideURL.Hostname()) {
		return endpoint
	}
	return parsed
}
