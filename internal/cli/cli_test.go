package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/api"
	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/runtimemode"
	"github.com/shuma/dashboard/internal/storage"
	"github.com/shuma/dashboard/internal/tabs"
)

const sessionCookie = "shuma_admin"

func newAdminServer(t *testing.T) *httptest.Server {
	t.Helper()
	loggedIn := func(r *http.Request) bool {
		c, err := r.Cookie(sessionCookie)
		return err == nil && c.Value == "ok"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(readBody(r), `"api_key":"secret"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "ok", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/session", func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(r) {
			_, _ = w.Write([]byte(`{"authenticated":true,"method":"session","csrf_token":"c"}`))
			return
		}
		_, _ = w.Write([]byte(`{"authenticated":false}`))
	})
	mux.HandleFunc("/admin/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/monitoring", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"details":{"analytics":{"ban_count":0}}}`))
	})
	mux.HandleFunc("/admin/config", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rate_limit":80}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func readBody(r *http.Request) string {
	var b bytes.Buffer
	_, _ = b.ReadFrom(r.Body)
	return b.String()
}

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	home := t.TempDir()
	return &config.Config{
		Home:      home,
		Endpoint:  endpoint,
		LogFile:   filepath.Join(home, "dashboard.log"),
		Mode:      runtimemode.Legacy,
		Intervals: tabs.DefaultIntervals(),
	}
}

func staticKey(key string) func() (string, error) {
	return func() (string, error) { return key, nil }
}

func TestLoginPersistsSession(t *testing.T) {
	srv := newAdminServer(t)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()
	var out bytes.Buffer

	_, err := LoginCommand(ctx, cfg, LoginOptions{ReadKey: staticKey("wrong"), Out: &out})
	require.ErrorIs(t, err, api.ErrLoginFailed)
	require.Equal(t, "Login failed. Check your key.", LoginMessage(err))

	_, err = LoginCommand(ctx, cfg, LoginOptions{ReadKey: staticKey("  "), Out: &out})
	require.Equal(t, "Enter your key.", LoginMessage(err))

	next, err := LoginCommand(ctx, cfg, LoginOptions{
		Next:    "/dashboard/index.html#ip-bans",
		ReadKey: staticKey("secret"),
		Out:     &out,
	})
	require.NoError(t, err)
	require.Equal(t, "/dashboard/index.html#ip-bans", next)

	saved, err := storage.LoadSession(cfg.Home)
	require.NoError(t, err)
	require.Equal(t, srv.URL, saved.Endpoint)

	// The saved session short-circuits the prompt.
	next, err = LoginCommand(ctx, cfg, LoginOptions{
		Next:    "https://evil.example.com/",
		ReadKey: func() (string, error) { return "", errors.New("prompted") },
		Out:     &out,
	})
	require.NoError(t, err)
	require.Equal(t, "/dashboard/index.html", next)
	require.Contains(t, out.String(), "Already logged in")
}

func TestWatchLegacyAndLogout(t *testing.T) {
	srv := newAdminServer(t)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	err := WatchCommand(ctx, cfg, WatchOptions{In: strings.NewReader("quit\n"), Out: &bytes.Buffer{}})
	require.ErrorIs(t, err, ErrLoginRequired)

	_, err = LoginCommand(ctx, cfg, LoginOptions{ReadKey: staticKey("secret"), Out: &bytes.Buffer{}})
	require.NoError(t, err)

	var out bytes.Buffer
	err = WatchCommand(ctx, cfg, WatchOptions{
		Path: "/dashboard/index.html#status",
		In:   strings.NewReader("status\nquit\n"),
		Out:  &out,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "== Status ==")
	require.Contains(t, out.String(), "rate_limit")

	out.Reset()
	require.NoError(t, LogoutCommand(ctx, cfg, &out))
	require.Contains(t, out.String(), "Logged out")
	_, err = storage.LoadSession(cfg.Home)
	require.ErrorIs(t, err, storage.ErrNoSession)

	out.Reset()
	require.NoError(t, LogoutCommand(ctx, cfg, &out))
	require.Contains(t, out.String(), "Not logged in")
}
