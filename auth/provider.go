// Package auth acquires Microsoft identity platform tokens for Graph.
//
// A Provider tries an ordered chain of OAuth2 strategies (client
// credentials, resource-owner password, device code) and caches the first
// token obtained. The cached token is refreshed before it expires; when a
// refresh fails the chain runs again once.
package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
)

// Well-known public client ids used when the configured application does
// not allow the password or device flows.
const (
	AzureCLIClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"
	GraphCLIClientID = "14d82eec-204b-4c2f-b7e8-296a70dab67e"
)

// DefaultAuthorityHost is the Microsoft identity platform host.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// GraphScope requests every application permission granted to the client.
const GraphScope = "https://graph.microsoft.com/.default"

// Strategy names an acquisition method in the chain.
type Strategy string

const (
	StrategyClientCredentials Strategy = "client_credentials"
	StrategyPassword          Strategy = "password"
	StrategyDeviceCode        Strategy = "device_code"
)

// Config holds Provider configuration.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	// AuthorityHost is the identity platform root.
	// Default: DefaultAuthorityHost
	AuthorityHost string

	// Scopes requested for every strategy.
	// Default: [GraphScope]
	Scopes []string

	// AllowInteractive enables the device code strategy.
	AllowInteractive bool

	// RefreshSkew is how long before expiry a token is replaced.
	// Default: 5m
	RefreshSkew time.Duration

	// HTTPClient is used for token requests.
	// Default: client with a 30s timeout
	HTTPClient *http.Client

	// Callbacks present the device code to the user.
	Callbacks *DeviceFlowCallbacks

	Logger *logging.Logger
}

// Endpoint returns the v2.0 endpoints of a tenant.
func Endpoint(authorityHost, tenant string) oauth2.Endpoint {
	if authorityHost == "" {
		authorityHost = DefaultAuthorityHost
	}
	base := strings.TrimRight(authorityHost, "/") + "/" + tenant + "/oauth2/v2.0"
	return oauth2.Endpoint{
		AuthURL:       base + "/authorize",
		DeviceAuthURL: base + "/devicecode",
		TokenURL:      base + "/token",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// Provider hands out bearer tokens for Graph requests.
type Provider struct {
	cfg      Config
	endpoint oauth2.Endpoint
	log      *logging.Logger

	// base carries the HTTP client for refreshes that outlive a request.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	source   oauth2.TokenSource
	strategy Strategy
	closed   atomic.Bool
}

// NewProvider creates a provider. No token is requested until Token is
// called.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.TenantID == "" {
		return nil, errors.InvalidInput("tenant id required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{GraphScope}
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = 5 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	base, cancel := context.WithCancel(context.WithValue(context.Background(), oauth2.HTTPClient, cfg.HTTPClient))
	return &Provider{
		cfg:      cfg,
		endpoint: Endpoint(cfg.AuthorityHost, cfg.TenantID),
		log:      log.WithComponent("auth"),
		base:     base,
		cancel:   cancel,
	}, nil
}

// Token returns a valid access token, acquiring or refreshing as needed.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if p.closed.Load() {
		return "", errors.Unauthorized("token provider closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source != nil {
		tok, err := p.source.Token()
		if err == nil {
			return tok.AccessToken, nil
		}
		p.log.Warn("token refresh failed", logging.Fields{"strategy": string(p.strategy), "error": err.Error()})
		p.source = nil
	}

	tok, source, strategy, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	p.source = oauth2.ReuseTokenSourceWithExpiry(tok, source, p.cfg.RefreshSkew)
	p.strategy = strategy
	return tok.AccessToken, nil
}

// Strategy returns the strategy that produced the cached token, or "" when
// none has been acquired.
func (p *Provider) Strategy() Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategy
}

// Close drops the cached token. Later Token calls fail.
func (p *Provider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.cancel()
	p.mu.Lock()
	p.source = nil
	p.mu.Unlock()
	return nil
}

type attempt struct {
	name string
	err  error
}

// acquire walks the strategy chain. It returns the first token and a
// source that fetches a fresh one on every call.
func (p *Provider) acquire(ctx context.Context) (*oauth2.Token, oauth2.TokenSource, Strategy, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	var attempts []attempt

	if p.cfg.ClientID != "" && p.cfg.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			TokenURL:     p.endpoint.TokenURL,
			Scopes:       p.cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err := cc.Token(ctx)
		p.log.AuthAttempt(string(StrategyClientCredentials), err)
		if err == nil {
			refresh := sourceFunc(func() (*oauth2.Token, error) { return cc.Token(p.base) })
			return tok, refresh, StrategyClientCredentials, nil
		}
		attempts = append(attempts, attempt{string(StrategyClientCredentials), err})
	}

	if p.cfg.Username != "" && p.cfg.Password != "" {
		for _, clientID := range p.publicClients() {
			conf := p.oauthConfig(clientID)
			tok, err := conf.PasswordCredentialsToken(ctx, p.cfg.Username, p.cfg.Password)
			name := string(StrategyPassword) + "(" + clientID + ")"
			p.log.AuthAttempt(name, err)
			if err == nil {
				return tok, p.refresher(conf, tok), StrategyPassword, nil
			}
			attempts = append(attempts, attempt{name, err})
		}
	}

	if p.cfg.AllowInteractive {
		conf := p.oauthConfig(AzureCLIClientID)
		tok, err := deviceToken(ctx, conf, p.cfg.Callbacks)
		p.log.AuthAttempt(string(StrategyDeviceCode), err)
		if err == nil {
			return tok, p.refresher(conf, tok), StrategyDeviceCode, nil
		}
		attempts = append(attempts, attempt{string(StrategyDeviceCode), err})
	}

	return nil, nil, "", chainError(attempts)
}

// publicClients lists the client ids tried for the password grant, the
// configured one first.
func (p *Provider) publicClients() []string {
	ids := []string{}
	for _, id := range []string{p.cfg.ClientID, AzureCLIClientID, GraphCLIClientID} {
		if id == "" {
			continue
		}
		dup := false
		for _, seen := range ids {
			dup = dup || seen == id
		}
		if !dup {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *Provider) oauthConfig(clientID string) *oauth2.Config {
	scopes := append([]string{}, p.cfg.Scopes...)
	scopes = append(scopes, "offline_access")
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: p.endpoint,
		Scopes:   scopes,
	}
}

// refresher exchanges the refresh token on every call. Without a refresh
// token it always fails, which sends the provider back to the chain.
func (p *Provider) refresher(conf *oauth2.Config, tok *oauth2.Token) oauth2.TokenSource {
	var mu sync.Mutex
	refreshToken := tok.RefreshToken
	return sourceFunc(func() (*oauth2.Token, error) {
		mu.Lock()
		defer mu.Unlock()
		if refreshToken == "" {
			return nil, errors.Unauthorized("token expired and no refresh token was issued")
		}
		next, err := conf.TokenSource(p.base, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return nil, err
		}
		if next.RefreshToken != "" {
			refreshToken = next.RefreshToken
		}
		return next, nil
	})
}

func chainError(attempts []attempt) error {
	if len(attempts) == 0 {
		return errors.Unauthorized("no authentication strategy configured: set a client secret, a username and password, or allow interactive login")
	}
	parts := make([]string, len(attempts))
	names := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.name + ": " + a.err.Error()
		names[i] = a.name
	}
	return errors.Unauthorized("all authentication strategies failed: "+strings.Join(parts, "; "),
		errors.WithMetadata("attempts", strings.Join(names, ",")),
		errors.WithCause(attempts[len(attempts)-1].err))
}

type sourceFunc func() (*oauth2.Token, error)

func (f sourceFunc) Token() (*oauth2.Token, error) {
	return f()
}
