package storage

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreateSecretKey(t *testing.T) {
	home := t.TempDir()
	path := SecretKeyPath(home)

	first, err := GetOrCreateSecretKey(path)
	require.NoError(t, err)
	require.Len(t, first, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := GetOrCreateSecretKey(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("not base64!"), 0600))
	third, err := GetOrCreateSecretKey(path)
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestSessionRoundTrip(t *testing.T) {
	home := t.TempDir()
	endpoint := "https://admin.example.com"
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	_, err := LoadSession(home)
	require.ErrorIs(t, err, ErrNoSession)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse(endpoint + "/admin/session")
	jar.SetCookies(u, []*http.Cookie{{Name: "shuma_admin", Value: "abc123", Path: "/"}})

	saved, err := CaptureSession(jar, endpoint, now)
	require.NoError(t, err)
	require.Equal(t, []Cookie{{Name: "shuma_admin", Value: "abc123"}}, saved.Cookies)
	require.NoError(t, SaveSession(home, saved))

	raw, err := os.ReadFile(filepath.Join(home, SessionFile))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "abc123")

	loaded, err := LoadSession(home)
	require.NoError(t, err)
	require.Equal(t, saved.Endpoint, loaded.Endpoint)
	require.True(t, now.Equal(loaded.SavedAt))

	fresh, err := cookiejar.New(nil)
	require.NoError(t, err)
	require.ErrorIs(t, loaded.Restore(fresh, "https://other.example.com"), ErrNoSession)
	require.NoError(t, loaded.Restore(fresh, endpoint))
	cookies := fresh.Cookies(u)
	require.Len(t, cookies, 1)
	require.Equal(t, "abc123", cookies[0].Value)

	require.NoError(t, RemoveSession(home))
	require.NoError(t, RemoveSession(home))
	_, err = LoadSession(home)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestLoadSessionWithRotatedKey(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, SaveSession(home, &SavedSession{Endpoint: "http://127.0.0.1:3000"}))
	require.NoError(t, os.Remove(SecretKeyPath(home)))

	_, err := LoadSession(home)
	require.ErrorIs(t, err, ErrNoSession)
}
