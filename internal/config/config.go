package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shuma/dashboard/internal/api"
	"github.com/shuma/dashboard/internal/runtimemode"
	"github.com/shuma/dashboard/internal/tabs"
	"github.com/shuma/dashboard/pkg/logger"
)

// DefaultEndpoint is the admin API used when nothing is configured.
const DefaultEndpoint = "http://127.0.0.1:3000"

// FileName is the optional YAML config under the dashboard home.
const FileName = "dashboard.yaml"

type Config struct {
	// Home is the directory where the dashboard keeps local state.
	Home string
	// Endpoint is the admin API origin.
	Endpoint string
	// LogLevel is the logger threshold.
	LogLevel logger.Level
	// LogFile receives logs while the terminal UI owns the screen.
	LogFile string
	// Debug enables verbose logging.
	Debug bool
	// Mode selects the native or legacy runtime.
	Mode runtimemode.Mode
	// Intervals is the per-tab auto-refresh cadence.
	Intervals tabs.IntervalTable
}

// fileConfig mirrors dashboard.yaml.
type fileConfig struct {
	Endpoint           string           `yaml:"endpoint"`
	LogLevel           string           `yaml:"log_level"`
	RefreshIntervalsMS map[string]int64 `yaml:"refresh_intervals_ms"`
}

// Load loads configuration from defaults, the optional dashboard.yaml and
// the environment, in increasing priority.
func Load() (*Config, error) {
	home := getenvFirst("SHUMA_DASHBOARD_HOME", "DASHBOARD_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".shuma-dashboard")
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create dashboard home: %w", err)
	}

	cfg := &Config{
		Home:      home,
		Endpoint:  DefaultEndpoint,
		LogLevel:  logger.LevelInfo,
		LogFile:   filepath.Join(home, "dashboard.log"),
		Mode:      runtimemode.FromOS(),
		Intervals: tabs.DefaultIntervals(),
	}

	if err := cfg.loadFile(filepath.Join(home, FileName)); err != nil {
		return nil, err
	}

	if endpoint := getenvFirst("SHUMA_DASHBOARD_ENDPOINT", "DASHBOARD_ENDPOINT"); endpoint != "" {
		if err := cfg.SetEndpoint(endpoint); err != nil {
			return nil, err
		}
	}
	if raw := getenvFirst("SHUMA_DASHBOARD_LOG_LEVEL", "DASHBOARD_LOG_LEVEL"); raw != "" {
		level, err := logger.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUMA_DASHBOARD_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	debug := os.Getenv("DEBUG")
	cfg.Debug = debug == "true" || debug == "1"
	if cfg.Debug && cfg.LogLevel > logger.LevelDebug {
		cfg.LogLevel = logger.LevelDebug
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.Endpoint != "" {
		if err := c.SetEndpoint(fc.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if fc.LogLevel != "" {
		level, err := logger.ParseLevel(fc.LogLevel)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.LogLevel = level
	}
	if len(fc.RefreshIntervalsMS) > 0 {
		overrides := tabs.FromMillis(fc.RefreshIntervalsMS)
		for tab := range overrides {
			if !tabs.IsKnown(tab) {
				return fmt.Errorf("%s: unknown tab %q in refresh_intervals_ms", path, tab)
			}
		}
		merged := c.Intervals.Merge(overrides)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.Intervals = merged
	}
	return nil
}

// SetEndpoint validates and stores the admin API origin.
func (c *Config) SetEndpoint(raw string) error {
	endpoint, ok := api.ParseEndpointURL(raw)
	if !ok {
		return fmt.Errorf("invalid admin endpoint %q (expected http or https URL)", raw)
	}
	c.Endpoint = endpoint
	return nil
}

// Save creates the dashboard home.
func (c *Config) Save() error {
	return os.MkdirAll(c.Home, 0700)
}

func getenvFirst(primary, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(primary)); val != "" {
		return val
	}
	return strings.TrimSpace(os.Getenv(fallback))
}
