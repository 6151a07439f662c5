package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shuma/dashboard/internal/cli"
	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/navigation"
	"github.com/shuma/dashboard/internal/runtimemode"
	"github.com/shuma/dashboard/internal/version"
	"github.com/shuma/dashboard/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if args == nil {
		return nil
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Debugf("config: endpoint=%s home=%s mode=%s", cfg.Endpoint, cfg.Home, cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "watch"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "watch":
		return watch(ctx, cfg, args)
	case "login":
		return login(ctx, cfg, args)
	case "logout":
		return cli.LogoutCommand(ctx, cfg, os.Stdout)
	case "version", "--version", "-v":
		fmt.Println("shuma-dashboard " + version.Rich())
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("shuma-dashboard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	endpoint := fs.String("endpoint", "", "Admin API endpoint")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	mode := fs.String("mode", "", "Runtime mode (native|legacy)")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showHelp {
		printUsage()
		return nil, nil
	}

	if *endpoint != "" {
		if err := cfg.SetEndpoint(*endpoint); err != nil {
			return nil, err
		}
	}
	if *logLevel != "" {
		level, err := logger.ParseLevel(*logLevel)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if *mode != "" {
		cfg.Mode = runtimemode.Normalize(*mode)
	}

	rest := fs.Args()
	if rest == nil {
		rest = []string{}
	}
	return rest, nil
}

func watch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	tab := fs.String("tab", "", "Tab to open (monitoring|ip-bans|status|config|tuning)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := navigation.FallbackPath
	if *tab != "" {
		path += "#" + *tab
	}
	err := cli.WatchCommand(ctx, cfg, cli.WatchOptions{Path: path})
	if errors.Is(err, cli.ErrLoginRequired) {
		return fmt.Errorf("login required, run: shuma-dashboard login --next '%s'", path)
	}
	return err
}

func login(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	next := fs.String("next", "", "Dashboard path to open after login")
	noWatch := fs.Bool("no-watch", false, "Exit after logging in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := cli.LoginCommand(ctx, cfg, cli.LoginOptions{Next: *next})
	if err != nil {
		return errors.New(cli.LoginMessage(err))
	}
	if *noWatch {
		return nil
	}
	return cli.WatchCommand(ctx, cfg, cli.WatchOptions{Path: path})
}

func printUsage() {
	fmt.Println(`shuma-dashboard - terminal dashboard for the Shuma admin API

Usage:
  shuma-dashboard [flags] [command]

Commands:
  watch [--tab TAB]                Open the dashboard (default)
  login [--next PATH] [--no-watch] Sign in with an admin API key
  logout                           End the admin session
  version                          Show version information
  help                             Show this help message

Flags:
  --endpoint URL     Admin API endpoint
  --log-level LEVEL  trace|debug|info|warn|error
  --mode MODE        native (terminal UI) or legacy (line console)

Environment Variables:
  SHUMA_DASHBOARD_HOME          State directory (default: ~/.shuma-dashboard)
  SHUMA_DASHBOARD_ENDPOINT      Admin API endpoint (default: http://127.0.0.1:3000)
  SHUMA_DASHBOARD_LOG_LEVEL     Log level
  SHUMA_DASHBOARD_RUNTIME_MODE  native|legacy
  DEBUG                         Enable debug logging (true/1)

Each SHUMA_DASHBOARD_* variable also accepts a DASHBOARD_* fallback.`)
}
