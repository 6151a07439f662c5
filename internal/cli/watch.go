package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/console"
	"github.com/shuma/dashboard/internal/dashboard"
	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/mount"
	"github.com/shuma/dashboard/internal/runtimemode"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/storage"
	"github.com/shuma/dashboard/internal/tui"
	"github.com/shuma/dashboard/pkg/logger"
)

// ErrLoginRequired is returned by WatchCommand when the saved session is
// missing or no longer accepted.
var ErrLoginRequired = errors.New("login required, run `shuma-dashboard login`")

// WatchOptions configures WatchCommand.
type WatchOptions struct {
	// Path is the dashboard location to open, e.g. /dashboard/index.html#ip-bans.
	Path string
	In   io.Reader
	Out  io.Writer
}

// WatchCommand mounts the dashboard runtime and hands it to the renderer
// selected by the runtime mode.
func WatchCommand(ctx context.Context, cfg *config.Config, opts WatchOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	client, jar, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.Mode == runtimemode.Native {
		closeLog, err := redirectLogs(cfg.LogFile)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	module := dashboard.New(dashboard.Options{
		Endpoint:  cfg.Endpoint,
		Window:    effects.NewWindow(cfg.Endpoint, opts.Path),
		HTTP:      client,
		Intervals: cfg.Intervals,
		Messages: func(kind session.MessageKind, text string) {
			logger.Infof("%s: %s", kind, text)
		},
		AfterLogout: func() {
			if err := storage.RemoveSession(cfg.Home); err != nil {
				logger.Warnf("failed to remove saved session: %v", err)
			}
		},
	})
	ctrl := mount.NewController(module.Loader(), module.Registry())

	pipeline := mount.PipelineLegacy
	if cfg.Mode == runtimemode.Native {
		pipeline = mount.PipelineExternal
	}
	if err := ctrl.Mount(ctx, mount.Options{Pipeline: pipeline}); err != nil {
		return fmt.Errorf("mount dashboard: %w", err)
	}
	defer ctrl.Unmount()

	if !ctrl.SessionState(ctx).Authenticated {
		if redirects := module.Window().Redirects(); len(redirects) > 0 {
			logger.Debugf("login redirect: %s", redirects[len(redirects)-1])
		}
		return ErrLoginRequired
	}
	if err := persistSession(cfg, jar); err != nil {
		logger.Warnf("failed to save session: %v", err)
	}

	logger.Infof("watching %s (%s runtime)", cfg.Endpoint, cfg.Mode)

	if cfg.Mode == runtimemode.Native {
		res, err := tui.Run(ctx, tui.Options{
			Runtime:  ctrl,
			Store:    module.Store(),
			Page:     module.Page(),
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return err
		}
		if res.LoggedOut {
			fmt.Fprintln(opts.Out, "Logged out")
		}
		return nil
	}

	_, err = console.Run(ctx, module, opts.In, opts.Out)
	return err
}

// redirectLogs sends log output to path while the terminal UI owns the
// screen.
func redirectLogs(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
