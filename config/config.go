// Package config loads agentcollab settings from the environment, an
// optional .env file and the credentials file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/vinayprograms/agentcollab/credentials"
	"github.com/vinayprograms/agentcollab/errors"
)

// Backends.
const (
	BackendGraph = "graph"
	BackendNATS  = "nats"
	BackendRedis = "redis"
)

// Concurrency modes.
const (
	ConcurrencyCAS = "cas"
	ConcurrencyLWW = "lww"
)

// M365 holds tenant, identity and Graph settings (M365_* variables).
// Field names map to variables by splitting words: TenantID is
// M365_TENANT_ID.
type M365 struct {
	TenantID     string `split_words:"true"`
	ClientID     string `split_words:"true"`
	ClientSecret string `split_words:"true"`
	Username     string `split_words:"true"`
	Password     string `split_words:"true"`

	SitePath          string        `split_words:"true"`
	Folder            string        `split_words:"true"`
	GraphBaseURL      string        `split_words:"true"`
	AuthorityHost     string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true"`
	AllowInteractive  bool          `split_words:"true"`
	TokenRefreshSkew  time.Duration `split_words:"true"`
	RequestsPerSecond float64       `split_words:"true"`
}

// App holds engine settings (AGENTCOLLAB_* variables).
type App struct {
	Backend      string `split_words:"true"`
	AgentID      string `split_words:"true"`
	Concurrency  string `split_words:"true"`
	MaxScan      int    `split_words:"true"`
	LogLevel     string `split_words:"true"`
	NatsURL      string `split_words:"true"`
	NatsBucket   string `split_words:"true"`
	RedisURL     string `split_words:"true"`
	RedisPrefix  string `split_words:"true"`
	OTLPEndpoint string `split_words:"true"`
	OTLPProtocol string `split_words:"true"`

	// EventsProtocol selects the mailbox event exporter: noop, file or http.
	EventsProtocol string `split_words:"true"`
	EventsEndpoint string `split_words:"true"`
}

// Config is the complete configuration.
type Config struct {
	M365 M365
	App  App

	// CredentialsPath is the credentials file that filled missing secrets,
	// or "" when none was used.
	CredentialsPath string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		M365: M365{
			SitePath:         "root",
			Folder:           "AgentMessages",
			GraphBaseURL:     "https://graph.microsoft.com/v1.0",
			AuthorityHost:    "https://login.microsoftonline.com",
			Timeout:          30 * time.Second,
			TokenRefreshSkew: 5 * time.Minute,
		},
		App: App{
			Backend:     BackendGraph,
			Concurrency: ConcurrencyCAS,
			MaxScan:     1000,
			LogLevel:    "info",
			NatsURL:     "nats://127.0.0.1:4222",
			NatsBucket:  "agent-messages",
			RedisPrefix: "agentcollab:",

			OTLPProtocol:   "http",
			EventsProtocol: "noop",
		},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// EnvFiles are loaded before the environment is read. Missing files are
	// ignored and variables already set are never overridden.
	// Default: [".env"]
	EnvFiles []string

	// CredentialsFile overrides the standard credentials locations.
	CredentialsFile string

	// SkipCredentialsFile disables the credentials file fallback.
	SkipCredentialsFile bool

	// Backend overrides AGENTCOLLAB_BACKEND when set.
	Backend string
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	files := opts.EnvFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.InvalidInput("load "+f, errors.WithCause(err))
		}
	}

	cfg := DefaultConfig()
	if err := envconfig.Process("M365", &cfg.M365); err != nil {
		return nil, errors.InvalidInput("read M365 environment", errors.WithCause(err))
	}
	if err := envconfig.Process("AGENTCOLLAB", &cfg.App); err != nil {
		return nil, errors.InvalidInput("read AGENTCOLLAB environment", errors.WithCause(err))
	}
	if opts.Backend != "" {
		cfg.App.Backend = opts.Backend
	}

	if !opts.SkipCredentialsFile {
		if err := cfg.fillFromCredentials(opts.CredentialsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillFromCredentials(path string) error {
	var (
		creds *credentials.Credentials
		err   error
	)
	if path != "" {
		creds, err = credentials.LoadFile(path)
	} else {
		creds, path, err = credentials.Load()
	}
	if err != nil {
		return errors.InvalidInput("credentials file", errors.WithCause(err))
	}
	if creds == nil {
		return nil
	}

	secrets := credentials.M365{
		TenantID:     c.M365.TenantID,
		ClientID:     c.M365.ClientID,
		ClientSecret: c.M365.ClientSecret,
		Username:     c.M365.Username,
		Password:     c.M365.Password,
	}
	creds.FillM365(&secrets)
	c.M365.TenantID = secrets.TenantID
	c.M365.ClientID = secrets.ClientID
	c.M365.ClientSecret = secrets.ClientSecret
	c.M365.Username = secrets.Username
	c.M365.Password = secrets.Password
	if c.App.RedisURL == "" {
		c.App.RedisURL = creds.RedisURL()
	}
	c.CredentialsPath = path
	return nil
}

// Validate checks the settings required by the selected backend.
func (c *Config) Validate() error {
	var missing []string
	switch c.App.Backend {
	case BackendGraph:
		if c.M365.TenantID == "" {
			missing = append(missing, "M365_TENANT_ID")
		}
		if c.M365.ClientID == "" {
			missing = append(missing, "M365_CLIENT_ID")
		}
		if c.M365.ClientSecret == "" {
			missing = append(missing, "M365_CLIENT_SECRET")
		}
	case BackendNATS:
		if c.App.NatsURL == "" {
			missing = append(missing, "AGENTCOLLAB_NATS_URL")
		}
	case BackendRedis:
		if c.App.RedisURL == "" {
			missing = append(missing, "AGENTCOLLAB_REDIS_URL")
		}
	default:
		return errors.InvalidInput("unknown backend " + c.App.Backend + " (want graph, nats or redis)")
	}
	if len(missing) > 0 {
		return errors.InvalidInput("missing required configuration: "+strings.Join(missing, ", "),
			errors.WithMetadata("missing", strings.Join(missing, ",")))
	}

	switch c.App.Concurrency {
	case ConcurrencyCAS, ConcurrencyLWW:
	default:
		return errors.InvalidInput("unknown concurrency mode " + c.App.Concurrency + " (want cas or lww)")
	}
	if c.App.MaxScan <= 0 {
		return errors.InvalidInput("AGENTCOLLAB_MAX_SCAN must be positive")
	}
	if c.M365.Timeout <= 0 {
		return errors.InvalidInput("M365_TIMEOUT must be positive")
	}
	return nil
}
