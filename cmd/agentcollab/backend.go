package main

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/agentcollab/auth"
	"github.com/vinayprograms/agentcollab/collab"
	"github.com/vinayprograms/agentcollab/config"
	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/shutdown"
	"github.com/vinayprograms/agentcollab/store"
	"github.com/vinayprograms/agentcollab/telemetry"
)

// opener builds the mailbox for one invocation.
type opener func(ctx context.Context, cfg *config.Config, agentID string, log *logging.Logger) (*mailbox, error)

// defaultOpener wires telemetry, the configured backend and the
// orchestrator together.
func defaultOpener(ctx context.Context, cfg *config.Config, agentID string, log *logging.Logger) (mb *mailbox, err error) {
	release := shutdown.New(cfg.M365.Timeout, func(r shutdown.Result) {
		if r.Err != nil {
			log.Warn("release failed", logging.Fields{"resource": r.Name, "error": r.Err.Error()})
			return
		}
		log.Debug("released", logging.Fields{"resource": r.Name, "duration": r.Duration.String()})
	})
	defer func() {
		if err != nil {
			release.Close()
		}
	}()

	tracer := telemetry.GetTracer()
	if cfg.App.OTLPEndpoint != "" {
		provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName:    "agentcollab",
			ServiceVersion: version,
			AgentID:        agentID,
			Backend:        cfg.App.Backend,
			Endpoint:       cfg.App.OTLPEndpoint,
			Protocol:       cfg.App.OTLPProtocol,
		})
		if err != nil {
			return nil, err
		}
		release.Add("tracing", shutdown.PhaseTelemetry, provider.Shutdown)
		tracer = provider.Tracer()
	}

	events, err := telemetry.NewExporter(cfg.App.EventsProtocol, cfg.App.EventsEndpoint)
	if err != nil {
		return nil, errors.InvalidInput("events: "+err.Error(), errors.WithCause(err))
	}
	release.Add("events", shutdown.PhaseTelemetry, shutdown.Closer(events))

	st, err := openStore(ctx, cfg, log, release)
	if err != nil {
		return nil, err
	}

	o := collab.New(st,
		collab.WithAgentID(agentID),
		collab.WithConcurrency(collab.Concurrency(cfg.App.Concurrency)),
		collab.WithMaxScan(cfg.App.MaxScan),
		collab.WithLogger(log),
		collab.WithTracer(tracer),
		collab.WithEvents(events),
	)
	release.Add("orchestrator", shutdown.PhaseMailbox, shutdown.Closer(o))
	return &mailbox{Orchestrator: o, Tracer: tracer, release: release}, nil
}

// openStore connects the configured backend. Resources the store itself does
// not own are added to release.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger, release *shutdown.Sequence) (store.ObjectStore, error) {
	switch cfg.App.Backend {
	case config.BackendGraph:
		provider, err := auth.NewProvider(auth.Config{
			TenantID:         cfg.M365.TenantID,
			ClientID:         cfg.M365.ClientID,
			ClientSecret:     cfg.M365.ClientSecret,
			Username:         cfg.M365.Username,
			Password:         cfg.M365.Password,
			AuthorityHost:    cfg.M365.AuthorityHost,
			AllowInteractive: cfg.M365.AllowInteractive,
			RefreshSkew:      cfg.M365.TokenRefreshSkew,
			Callbacks:        auth.DefaultCallbacks(),
			Logger:           log,
		})
		if err != nil {
			return nil, err
		}
		release.Add("auth", shutdown.PhaseConnections, shutdown.Closer(provider))
		st, err := store.NewGraphStore(store.GraphConfig{
			Tokens:            provider,
			BaseURL:           cfg.M365.GraphBaseURL,
			SitePath:          cfg.M365.SitePath,
			Folder:            cfg.M365.Folder,
			Timeout:           cfg.M365.Timeout,
			RequestsPerSecond: cfg.M365.RequestsPerSecond,
			Logger:            log,
		})
		if err != nil {
			return nil, errors.Internal("graph store", errors.WithCause(err))
		}
		return st, nil

	case config.BackendNATS:
		nc, err := nats.Connect(cfg.App.NatsURL, nats.Name("agentcollab"), nats.Timeout(cfg.M365.Timeout))
		if err != nil {
			return nil, errors.Store(0, "connect to nats: "+err.Error(), errors.WithCause(err))
		}
		release.Add("nats", shutdown.PhaseConnections, func(context.Context) error {
			nc.Close()
			return nil
		})
		st, err := store.NewNATSStore(store.NATSStoreConfig{
			Conn:    nc,
			Bucket:  cfg.App.NatsBucket,
			Timeout: cfg.M365.Timeout,
		})
		if err != nil {
			return nil, errors.Internal("nats store", errors.WithCause(err))
		}
		return st, nil

	case config.BackendRedis:
		st, err := store.NewRedisStore(ctx, store.RedisStoreConfig{
			URL:    cfg.App.RedisURL,
			Prefix: cfg.App.RedisPrefix,
		})
		if err != nil {
			return nil, errors.Store(0, "connect to redis: "+err.Error(), errors.WithCause(err))
		}
		return st, nil
	}
	return nil, errors.InvalidInput("unknown backend " + cfg.App.Backend)
}
