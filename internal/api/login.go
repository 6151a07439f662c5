package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resty.dev/v3"
)

var (
	// ErrEmptyKey is returned by Login for a blank key.
	ErrEmptyKey = errors.New("enter your key")
	// ErrLoginFailed is returned when the server rejects the key.
	ErrLoginFailed = errors.New("login failed, check your key")
)

// Login exchanges apiKey for a session cookie. The cookie lands in the
// client's jar.
func Login(ctx context.Context, client *resty.Client, endpoint, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrEmptyKey
	}
	res, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"api_key": key}).
		Post(endpoint + "/admin/login")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w (status %d)", ErrLoginFailed, res.StatusCode())
	}
	return nil
}
