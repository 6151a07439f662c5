// Package version reports the dashboard client's version and build metadata.
//
// Commit may be set with -ldflags; otherwise the VCS revision recorded by the
// Go toolchain is used.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Commit is the git revision of this build.
var Commit string

// semanticAlphabet is the allowed character set for pre-release identifiers.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	major uint = 0
	minor uint = 4
	patch uint = 0

	preRelease = ""
)

// Version returns the semantic version.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if pre := filterAlphabet(preRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// Rich returns the version followed by the commit, when known.
func Rich() string {
	commit := revision()
	if commit == "" {
		return Version()
	}
	return fmt.Sprintf("%s commit=%s", Version(), commit)
}

// UserAgent is sent with every admin API request.
func UserAgent() string {
	return "shuma-dashboard/" + Version()
}

func revision() string {
	if c := strings.TrimSpace(Commit); c != "" {
		return c
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

func filterAlphabet(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
