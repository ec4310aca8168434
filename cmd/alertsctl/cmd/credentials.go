package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/alertboard/internal/client"
)

// errNotLoggedIn is returned when no credentials are saved.
var errNotLoggedIn = errors.New("not logged in; run 'alertsctl login' first")

// refreshMargin renews the access token this long before it expires.
const refreshMargin = 30 * time.Second

// Credentials is what login saves between invocations.
type Credentials struct {
	Server       string    `yaml:"server"`
	Username     string    `yaml:"username"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// Expired reports whether the access token needs refreshing at now.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.Add(refreshMargin).After(c.ExpiresAt)
}

// credentialsPath returns ALERTBOARD_CREDENTIALS or
// ~/.alertboard/credentials.yaml.
func credentialsPath() (string, error) {
	if p := os.Getenv("ALERTBOARD_CREDENTIALS"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".alertboard", "credentials.yaml"), nil
}

func loadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	if creds.Server == "" || creds.AccessToken == "" {
		return nil, errNotLoggedIn
	}
	return &creds, nil
}

// saveCredentials writes creds readable by the owner only.
func saveCredentials(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func removeCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// connect returns a client for the saved session, refreshing the access
// token first when it is about to expire.
func connect(ctx context.Context) (*client.Client, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	creds, err := loadCredentials(path)
	if err != nil {
		return nil, err
	}
	server := creds.Server
	if serverURL != "" {
		server = serverURL
	}

	c, err := client.New(server, client.WithToken(creds.AccessToken), client.WithLogger(cliLogger()))
	if err != nil {
		return nil, err
	}
	if !creds.Expired(time.Now()) || creds.RefreshToken == "" {
		return c, nil
	}

	PrintVerbose("refreshing access token for %s", creds.Username)
	resp, err := c.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if client.IsUnauthorized(err) {
			return nil, fmt.Errorf("session expired; run 'alertsctl login' again")
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	creds.AccessToken = resp.AccessToken
	creds.RefreshToken = resp.RefreshToken
	creds.ExpiresAt = expiry(resp.ExpiresIn)
	if err := saveCredentials(path, creds); err != nil {
		return nil, err
	}
	return c, nil
}

func expiry(expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second).UTC()
}
