package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/session"
)

type staticContext struct {
	ctx session.AdminContext
	err error
}

func (s staticContext) AdminContext() (session.AdminContext, error) { return s.ctx, s.err }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/ban", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(RequestIDHeader) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["reason"] != "manual_ban" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bans":[{"ip":"203.0.113.9","reason":"honeypot"}]}`))
	})
	mux.HandleFunc("/admin/monitoring", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hours") != "24" || r.URL.Query().Get("limit") != "10" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"details":{}}`))
	})
	mux.HandleFunc("/admin/config", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/admin/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"store offline"}`))
	})
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["api_key"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "shuma_admin", Value: "s1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDecodesBans(t *testing.T) {
	srv := newTestServer(t)
	c := New(Options{Session: staticContext{ctx: session.AdminContext{Endpoint: srv.URL}}})

	raw, err := c.Bans(context.Background())
	require.NoError(t, err)
	bans, err := Decode[Bans](raw)
	require.NoError(t, err)
	require.Len(t, bans.Bans, 1)
	require.Equal(t, "203.0.113.9", bans.Bans[0].Field("ip"))

	require.NoError(t, c.Ban(context.Background(), "203.0.113.10", 3600, ""))

	_, err = c.Monitoring(context.Background(), 24, 10)
	require.NoError(t, err)
}

func TestClientErrors(t *testing.T) {
	srv := newTestServer(t)
	unauthorized := 0
	var seen []error
	c := New(Options{
		Session:        staticContext{ctx: session.AdminContext{Endpoint: srv.URL}},
		OnUnauthorized: func() { unauthorized++ },
		OnError:        func(err error) { seen = append(seen, err) },
	})

	_, err := c.Config(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, unauthorized)

	_, err = c.Events(context.Background(), 24)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.Equal(t, "store offline", apiErr.Message)
	require.Len(t, seen, 2)
}

func TestClientWithoutSession(t *testing.T) {
	c := New(Options{Session: staticContext{err: session.ErrLoginRequired}})
	_, err := c.Bans(context.Background())
	require.ErrorIs(t, err, session.ErrLoginRequired)

	c = New(Options{})
	_, err = c.Bans(context.Background())
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	c := New(Options{})

	require.ErrorIs(t, Login(context.Background(), c.http, srv.URL, "  "), ErrEmptyKey)
	require.ErrorIs(t, Login(context.Background(), c.http, srv.URL, "wrong"), ErrLoginFailed)
	require.NoError(t, Login(context.Background(), c.http, srv.URL, " secret "))
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "Request failed", errorMessage(nil))
	require.Equal(t, "plain text", errorMessage([]byte("plain text")))
	require.Equal(t, "bad", errorMessage([]byte(`{"detail":"bad"}`)))
	require.Equal(t, "Request failed", errorMessage([]byte(`{}`)))
}

func TestTopIPDecoding(t *testing.T) {
	ev, err := Decode[Events](json.RawMessage(`{"top_ips":[["198.51.100.1",7]],"unique_ips":3}`))
	require.NoError(t, err)
	require.Equal(t, []TopIP{{IP: "198.51.100.1", Count: 7}}, ev.TopIPs)
	require.Equal(t, 3, ev.UniqueIPs)
}
