// Package logger is the process-wide leveled logger used by the dashboard
// client.
//
// Call sites use printf-style helpers (Infof, Debugf, ...). Output is rendered
// by zerolog's console writer so log files stay human readable.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (timer arms, effect calls).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	mu    sync.RWMutex
	level = LevelInfo
	base  = newBase(os.Stderr)
)

func init() {
	// Filtering happens in Enabled; zerolog itself must not drop trace.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

func newBase(w io.Writer) zerolog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	console := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(console).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	defer mu.Unlock()
	base = newBase(w)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	lg := base
	mu.RUnlock()

	var zl zerolog.Level
	switch l {
	case LevelTrace:
		zl = zerolog.TraceLevel
	case LevelDebug:
		zl = zerolog.DebugLevel
	case LevelWarn:
		zl = zerolog.WarnLevel
	case LevelError:
		zl = zerolog.ErrorLevel
	default:
		zl = zerolog.InfoLevel
	}
	lg.WithLevel(zl).Msgf(format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { emit(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { emit(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { emit(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { emit(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { emit(LevelError, format, args...) }
