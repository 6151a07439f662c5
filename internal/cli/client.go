// Package cli implements the shuma-dashboard subcommands.
package cli

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"resty.dev/v3"

	"github.com/shuma/dashboard/internal/config"
	"github.com/shuma/dashboard/internal/storage"
	"github.com/shuma/dashboard/internal/version"
	"github.com/shuma/dashboard/pkg/logger"
)

// requestTimeout bounds every admin API call.
const requestTimeout = 15 * time.Second

// newHTTPClient returns a resty client whose cookie jar holds the persisted
// admin session for cfg.Endpoint.
func newHTTPClient(cfg *config.Config) (*resty.Client, http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := resty.New().
		SetCookieJar(jar).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", version.UserAgent())

	saved, err := storage.LoadSession(cfg.Home)
	switch {
	case err == nil:
		if err := saved.Restore(jar, cfg.Endpoint); err != nil {
			logger.Debugf("saved session is for %s, not %s", saved.Endpoint, cfg.Endpoint)
		}
	case errors.Is(err, storage.ErrNoSession):
		logger.Debugf("no saved session: %v", err)
	default:
		logger.Warnf("failed to load saved session: %v", err)
	}
	return client, jar, nil
}

// persistSession seals the jar's cookies for cfg.Endpoint.
func persistSession(cfg *config.Config, jar http.CookieJar) error {
	saved, err := storage.CaptureSession(jar, cfg.Endpoint, time.Now())
	if err != nil {
		return err
	}
	if len(saved.Cookies) == 0 {
		return nil
	}
	return storage.SaveSession(cfg.Home, saved)
}
