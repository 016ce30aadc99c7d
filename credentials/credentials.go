// Package credentials loads Microsoft 365 secrets from standard locations.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when credentials file has overly permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds the secrets loaded from credentials.toml.
type Credentials struct {
	// M365 is the [m365] section.
	M365 M365 `toml:"m365"`

	// Redis is the [redis] section.
	Redis Redis `toml:"redis"`
}

// M365 holds tenant and identity secrets.
type M365 struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
}

// Redis holds the connection URL, which may embed a password.
type Redis struct {
	URL string `toml:"url"`
}

// StandardPaths returns the standard credential file locations in order of priority
func StandardPaths() []string {
	paths := []string{}

	// 1. Current directory
	paths = append(paths, "credentials.toml")

	// 2. ~/.config/agentcollab/credentials.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agentcollab", "credentials.toml"))
	}

	// 3. ~/.agentcollab/credentials.toml (fallback)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".agentcollab", "credentials.toml"))
	}

	return paths
}

// Load loads credentials from the first available standard location
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil // No credentials file found (not an error)
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions if file is readable by group or others.
func LoadFile(path string) (*Credentials, error) {
	// Check file permissions (Unix only)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		mode := info.Mode().Perm()
		// Credentials must be 0400 (owner read-only)
		if mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &creds, nil
}

// FillM365 copies file values into the empty fields of dst. Values already
// set, typically from the environment, win.
func (c *Credentials) FillM365(dst *M365) {
	if c == nil {
		return
	}
	fill(&dst.TenantID, c.M365.TenantID)
	fill(&dst.ClientID, c.M365.ClientID)
	fill(&dst.ClientSecret, c.M365.ClientSecret)
	fill(&dst.Username, c.M365.Username)
	fill(&dst.Password, c.M365.Password)
}

// RedisURL returns the file's Redis URL, or "" when c is nil.
func (c *Credentials) RedisURL() string {
	if c == nil {
		return ""
	}
	return c.Redis.URL
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
