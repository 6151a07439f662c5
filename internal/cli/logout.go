package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/effects"
	"github.com/shuma/dashboard/internal/session"
	"github.com/shuma/dashboard/internal/storage"
	"github.com/shuma/dashboard/pkg/logger"
)

// LogoutCommand ends the admin session on the server and forgets it locally.
func LogoutCommand(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	client, _, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	resolve := func() string { return cfg.Endpoint }
	admin := session.NewAdminSession(session.AdminSessionOptions{ResolveEndpoint: resolve})
	admin.Attach(client)

	rt := session.NewRuntime(session.RuntimeOptions{
		Controller:      admin,
		Effects:         effects.New(effects.Options{HTTP: client}),
		ResolveEndpoint: resolve,
		Messages: func(kind session.MessageKind, text string) {
			fmt.Fprintln(out, text)
		},
	})

	if !rt.RestoreSession(ctx) {
		fmt.Fprintln(out, "Not logged in")
	} else {
		rt.LogoutSession(ctx)
	}

	if err := storage.RemoveSession(cfg.Home); err != nil {
		return err
	}
	logger.Infof("logged out of %s", cfg.Endpoint)
	return nil
}
