package storage

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shuma/dashboard/internal/crypto"
)

// ErrNoSession is returned when no session has been saved, or the saved one
// can no longer be opened.
var ErrNoSession = errors.New("no saved session")

// Cookie is the persisted part of a session cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SavedSession is the admin session kept between runs.
type SavedSession struct {
	Endpoint string    `json:"endpoint"`
	Cookies  []Cookie  `json:"cookies"`
	SavedAt  time.Time `json:"saved_at"`
}

// CaptureSession copies the jar's cookies for endpoint.
func CaptureSession(jar http.CookieJar, endpoint string, now time.Time) (*SavedSession, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	s := &SavedSession{Endpoint: endpoint, SavedAt: now.UTC()}
	for _, c := range jar.Cookies(adminURL(u)) {
		s.Cookies = append(s.Cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return s, nil
}

// Restore loads the saved cookies into jar. Cookies saved for another
// endpoint are not restored.
func (s *SavedSession) Restore(jar http.CookieJar, endpoint string) error {
	if s == nil || s.Endpoint != endpoint {
		return ErrNoSession
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(adminURL(u), cookies)
	return nil
}

func adminURL(u *url.URL) *url.URL {
	out := *u
	out.Path = u.Path + "/admin/"
	return &out
}

// SaveSession seals s under the home's secret key.
func SaveSession(home string, s *SavedSession) error {
	key, err := sessionKey(home)
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(s, key)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if err := os.WriteFile(SessionPath(home), sealed, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// LoadSession opens the sealed session under home.
func LoadSession(home string) (*SavedSession, error) {
	data, err := os.ReadFile(SessionPath(home))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	key, err := sessionKey(home)
	if err != nil {
		return nil, err
	}
	var s SavedSession
	if err := crypto.Open(data, key, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return &s, nil
}

// RemoveSession deletes the sealed session. A missing file is not an error.
func RemoveSession(home string) error {
	err := os.Remove(SessionPath(home))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func sessionKey(home string) (*[crypto.KeySize]byte, error) {
	raw, err := GetOrCreateSecretKey(SecretKeyPath(home))
	if err != nil {
		return nil, err
	}
	return crypto.KeyFromBytes(raw)
}
