package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuma/dashboard/internal/runtimemode"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

func clearEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"SHUMA_DASHBOARD_ENDPOINT", "DASHBOARD_ENDPOINT",
		"SHUMA_DASHBOARD_LOG_LEVEL", "DASHBOARD_LOG_LEVEL",
		"DASHBOARD_HOME", "DEBUG",
		runtimemode.EnvKey, runtimemode.LegacyEnvKey,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("SHUMA_DASHBOARD_HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, home, cfg.Home)
	require.Equal(t, DefaultEndpoint, cfg.Endpoint)
	require.Equal(t, logger.LevelInfo, cfg.LogLevel)
	require.Equal(t, runtimemode.Native, cfg.Mode)
	require.Equal(t, tabs.DefaultIntervals(), cfg.Intervals)
	require.Equal(t, filepath.Join(home, "dashboard.log"), cfg.LogFile)

	info, err := os.Stat(home)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLoadFileThenEnv(t *testing.T) {
	home := clearEnv(t)
	require.NoError(t, os.MkdirAll(home, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(`
endpoint: https://Admin.Example.com/
log_level: warn
refresh_intervals_ms:
  monitoring: 10000
  ip-bans: 15000
`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://admin.example.com", cfg.Endpoint)
	require.Equal(t, logger.LevelWarn, cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.Intervals.For(tabs.Monitoring))
	require.Equal(t, 15*time.Second, cfg.Intervals.For(tabs.IPBans))
	require.Equal(t, time.Minute, cfg.Intervals.For(tabs.Config))

	t.Setenv("DASHBOARD_ENDPOINT", "http://localhost:4000")
	t.Setenv("DEBUG", "1")
	t.Setenv(runtimemode.LegacyEnvKey, "LEGACY")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4000", cfg.Endpoint)
	require.True(t, cfg.Debug)
	require.Equal(t, logger.LevelDebug, cfg.LogLevel)
	require.Equal(t, runtimemode.Legacy, cfg.Mode)
}

func TestLoadRejectsBadFile(t *testing.T) {
	cases := map[string]string{
		"unknown field": "colour: blue\n",
		"unknown tab":   "refresh_intervals_ms: {alerts: 1000}\n",
		"non positive":  "refresh_intervals_ms: {monitoring: 0}\n",
		"bad endpoint":  "endpoint: ftp://example.com\n",
		"bad level":     "log_level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			home := clearEnv(t)
			require.NoError(t, os.MkdirAll(home, 0700))
			require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte(body), 0600))
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHUMA_DASHBOARD_ENDPOINT", "not a url")
	_, err := Load()
	require.Error(t, err)
}

func TestEmptyFileIsAccepted(t *testing.T) {
	home := clearEnv(t)
	require.NoError(t, os.MkdirAll(home, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), nil, 0600))
	_, err := Load()
	require.NoError(t, err)
}
