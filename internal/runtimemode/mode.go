// Package runtimemode decides which dashboard runtime backs the process.
package runtimemode

import (
	"os"
	"strings"
)

// Mode names a concrete dashboard runtime implementation.
type Mode string

const (
	// Native is the component-based runtime (the terminal UI).
	Native Mode = "native"
	// Legacy is the line-oriented runtime driven by the tab coordinator.
	Legacy Mode = "legacy"

	// Default is used whenever no recognized value is configured.
	Default = Native
)

// Environment keys in priority order.
const (
	EnvKey       = "SHUMA_DASHBOARD_RUNTIME_MODE"
	LegacyEnvKey = "DASHBOARD_RUNTIME_MODE"
)

// LookupFunc reads a single environment key. It has the same contract as
// os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Normalize maps a raw configuration value to a Mode. Only an exact
// (case and whitespace insensitive) "legacy" selects Legacy.
func Normalize(raw string) Mode {
	if strings.ToLower(strings.TrimSpace(raw)) == string(Legacy) {
		return Legacy
	}
	return Default
}

// Resolve reads the runtime mode from lookup. The primary key wins whenever it
// is present, even when empty; the legacy key is only consulted when the
// primary key is unset.
func Resolve(lookup LookupFunc) Mode {
	if lookup == nil {
		return Default
	}
	raw, ok := lookup(EnvKey)
	if !ok {
		raw, _ = lookup(LegacyEnvKey)
	}
	return Normalize(raw)
}

// FromOS resolves the mode from the process environment.
func FromOS() Mode {
	return Resolve(os.LookupEnv)
}

// FromMap adapts a plain map to a LookupFunc.
func FromMap(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
