package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/shuma/dashboard/internal/api"
	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/navigation"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/pkg/logger"
)

// LoginOptions configures LoginCommand.
type LoginOptions struct {
	// Next is the dashboard path to open afterwards. Unsafe values fall back
	// to the dashboard index.
	Next string
	// ReadKey prompts for the API key. Nil reads from the terminal.
	ReadKey func() (string, error)
	Out     io.Writer
}

// LoginCommand signs in with an admin API key and persists the session. It
// returns the safe path to open next. An existing valid session skips the
// prompt.
func LoginCommand(ctx context.Context, cfg *config.Config, opts LoginOptions) (string, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	next := navigation.SafeNextPath(opts.Next, cfg.Endpoint)

	client, jar, err := newHTTPClient(cfg)
	if err != nil {
		return "", err
	}
	defer client.Close()

	admin := session.NewAdminSession(session.AdminSessionOptions{
		ResolveEndpoint: func() string { return cfg.Endpoint },
	})
	admin.Attach(client)
	if admin.RestoreAdminSession(ctx) {
		fmt.Fprintf(out, "Already logged in to %s\n", cfg.Endpoint)
		return next, nil
	}

	readKey := opts.ReadKey
	if readKey == nil {
		readKey = promptKey(out)
	}
	key, err := readKey()
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}

	if err := api.Login(ctx, client, cfg.Endpoint, key); err != nil {
		logger.Debugf("login rejected: %v", err)
		return "", err
	}

	if err := persistSession(cfg, jar); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	logger.Infof("logged in to %s", cfg.Endpoint)
	fmt.Fprintf(out, "Logged in to %s\n", cfg.Endpoint)
	return next, nil
}

// LoginMessage is the text shown for a failed login.
func LoginMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrEmptyKey):
		return "Enter your key."
	case errors.Is(err, api.ErrLoginFailed):
		return "Login failed. Check your key."
	default:
		return err.Error()
	}
}

// promptKey reads the key without echo on a terminal, or one line of stdin
// otherwise.
func promptKey(out io.Writer) func() (string, error) {
	return func() (string, error) {
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprint(out, "Admin API key: ")
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
