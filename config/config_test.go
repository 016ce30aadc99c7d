package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vinayprograms/agentcollab/errors"
)

// isolate runs the test in an empty directory with an empty HOME so no
// .env or credentials file leaks in.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	t.Cleanup(func() { os.Chdir(orig) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("M365_TENANT_ID", "tenant")
	t.Setenv("M365_CLIENT_ID", "client")
	t.Setenv("M365_CLIENT_SECRET", "secret")
	t.Setenv("M365_TIMEOUT", "10s")
	t.Setenv("M365_ALLOW_INTERACTIVE", "true")
	t.Setenv("AGENTCOLLAB_AGENT_ID", "agent-7")
	t.Setenv("AGENTCOLLAB_CONCURRENCY", "lww")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.M365.TenantID != "tenant" || cfg.M365.ClientSecret != "secret" {
		t.Errorf("unexpected secrets %+v", cfg.M365)
	}
	if cfg.M365.Timeout != 10*time.Second || !cfg.M365.AllowInteractive {
		t.Errorf("unexpected timeout/interactive %v %v", cfg.M365.Timeout, cfg.M365.AllowInteractive)
	}
	if cfg.App.AgentID != "agent-7" || cfg.App.Concurrency != ConcurrencyLWW {
		t.Errorf("unexpected app config %+v", cfg.App)
	}
	// Unset variables keep their defaults.
	if cfg.M365.Folder != "AgentMessages" || cfg.M365.SitePath != "root" || cfg.App.MaxScan != 1000 {
		t.Errorf("defaults lost: %+v %+v", cfg.M365, cfg.App)
	}
}

func TestLoad_MissingGraphSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("M365_TENANT_ID", "tenant")

	_, err := Load(LoadOptions{})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if got := errors.AsError(err).Metadata()["missing"]; got != "M365_CLIENT_ID,M365_CLIENT_SECRET" {
		t.Errorf("missing = %q", got)
	}
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	dir := isolate(t)
	os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"M365_TENANT_ID=from-file\nM365_CLIENT_ID=file-client\nM365_CLIENT_SECRET=file-secret\n"), 0600)
	t.Setenv("M365_TENANT_ID", "from-env")
	// Variables loaded from the file must not outlive the test.
	t.Setenv("M365_CLIENT_ID", "")
	t.Setenv("M365_CLIENT_SECRET", "")
	os.Unsetenv("M365_CLIENT_ID")
	os.Unsetenv("M365_CLIENT_SECRET")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.M365.TenantID != "from-env" {
		t.Errorf("environment should win over .env, got %q", cfg.M365.TenantID)
	}
	if cfg.M365.ClientID != "file-client" {
		t.Errorf("expected client id from .env, got %q", cfg.M365.ClientID)
	}
}

func TestLoad_CredentialsFileFallback(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "creds.toml")
	os.WriteFile(path, []byte("[m365]\ntenant_id = \"file-tenant\"\nclient_id = \"file-client\"\nclient_secret = \"file-secret\"\n"), 0400)
	t.Setenv("M365_CLIENT_ID", "env-client")

	cfg, err := Load(LoadOptions{CredentialsFile: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.M365.ClientID != "env-client" {
		t.Errorf("environment should win, got %q", cfg.M365.ClientID)
	}
	if cfg.M365.TenantID != "file-tenant" || cfg.M365.ClientSecret != "file-secret" {
		t.Errorf("missing values should come from the file: %+v", cfg.M365)
	}
	if cfg.CredentialsPath != path {
		t.Errorf("credentials path = %q", cfg.CredentialsPath)
	}
}

func TestLoad_InsecureCredentialsFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "creds.toml")
	os.WriteFile(path, []byte("[m365]\n"), 0644)

	if _, err := Load(LoadOptions{CredentialsFile: path}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for insecure file, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"nats defaults", func(c *Config) { c.App.Backend = BackendNATS }, false},
		{"redis without url", func(c *Config) { c.App.Backend = BackendRedis }, true},
		{"redis with url", func(c *Config) { c.App.Backend = BackendRedis; c.App.RedisURL = "redis://x" }, false},
		{"unknown backend", func(c *Config) { c.App.Backend = "s3" }, true},
		{"unknown concurrency", func(c *Config) { c.App.Backend = BackendNATS; c.App.Concurrency = "optimistic" }, true},
		{"zero max scan", func(c *Config) { c.App.Backend = BackendNATS; c.App.MaxScan = 0 }, true},
		{"graph complete", func(c *Config) {
			c.M365.TenantID, c.M365.ClientID, c.M365.ClientSecret = "t", "c", "s"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
