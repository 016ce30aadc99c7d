package collab

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/message"
	"github.com/vinayprograms/agentcollab/store"
	"github.com/vinayprograms/agentcollab/telemetry"
)

// Concurrency selects how status updates guard against concurrent writers.
type Concurrency string

const (
	// ConcurrencyCAS makes updates conditional on the etag that was read.
	ConcurrencyCAS Concurrency = "cas"

	// ConcurrencyLastWriterWins overwrites unconditionally.
	ConcurrencyLastWriterWins Concurrency = "lww"
)

const (
	// DefaultLimit is the listing size when Filter.Limit is zero.
	DefaultLimit = 50

	// DefaultMaxScan bounds the entries one listing may examine.
	DefaultMaxScan = 1000

	// maxPostAttempts bounds id regeneration after create-only collisions.
	maxPostAttempts = 3
)

// Orchestrator is one agent's handle on the mailbox.
type Orchestrator struct {
	store       store.ObjectStore
	agentID     string
	concurrency Concurrency
	maxScan     int

	log    *logging.Logger
	tracer *telemetry.Tracer
	events telemetry.Exporter
	now    func() time.Time
	idGen  func() string

	closed atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAgentID sets the id recorded as author, claimant and completer.
func WithAgentID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.agentID = id
		}
	}
}

// WithConcurrency sets the update strategy.
func WithConcurrency(c Concurrency) Option {
	return func(o *Orchestrator) {
		o.concurrency = c
	}
}

// WithMaxScan bounds the entries examined by one listing.
func WithMaxScan(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxScan = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l.WithComponent("collab")
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithEvents sets the exporter that receives mailbox events.
func WithEvents(e telemetry.Exporter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.events = e
		}
	}
}

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator sets a custom message id generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		o.idGen = gen
	}
}

// New creates an orchestrator over st. The orchestrator owns st and closes
// it in Close.
func New(st store.ObjectStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		agentID:     message.NewAgentID(),
		concurrency: ConcurrencyCAS,
		maxScan:     DefaultMaxScan,
		log:         logging.Nop(),
		tracer:      telemetry.GetTracer(),
		events:      telemetry.NewNoopExporter(),
		now:         time.Now,
		idGen:       message.NewID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AgentID returns the id this orchestrator acts as.
func (o *Orchestrator) AgentID() string {
	return o.agentID
}

// Concurrency returns the update strategy in use.
func (o *Orchestrator) Concurrency() Concurrency {
	return o.concurrency
}

// Close flushes pending events and closes the store.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}
	if err := o.events.Flush(); err != nil {
		o.log.Warn("event flush failed", logging.Fields{"error": err.Error()})
	}
	return o.store.Close()
}

func (o *Orchestrator) checkOpen() error {
	if o.closed.Load() {
		return errors.Internal("orchestrator closed")
	}
	return nil
}

func (o *Orchestrator) timestamp() time.Time {
	return message.Normalize(o.now())
}

// ensureContainer runs before every write.
func (o *Orchestrator) ensureContainer(ctx context.Context) error {
	ctx, span := o.tracer.StartStoreSpan(ctx, "ensure_container", "")
	outcome, err := o.store.EnsureContainer(ctx)
	o.tracer.EndStoreSpan(span, err)
	if err != nil {
		return storeError(err, "ensure container", "")
	}
	if outcome == store.Created {
		o.log.Info("container created")
	}
	return nil
}

func (o *Orchestrator) record(name string, m *message.Message, data map[string]any) {
	o.events.Record(telemetry.Event{
		Name:        name,
		Timestamp:   m.Timestamp,
		AgentID:     o.agentID,
		MessageID:   m.ID,
		MessageType: string(m.Type),
		Status:      string(m.Status),
		Data:        data,
	})
}

// storeError converts store sentinels into coded errors. Errors that
// already carry a code pass through.
func storeError(err error, op, id string) error {
	if errors.AsError(err) != nil {
		return err
	}
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return errors.NotFound(id)
	case stderrors.Is(err, store.ErrPreconditionFailed):
		return errors.Conflict(id, errors.WithCause(err))
	case stderrors.Is(err, store.ErrInvalidKey):
		return errors.InvalidInput("invalid message id "+id, errors.WithCause(err), errors.WithMessageID(id))
	case stderrors.Is(err, store.ErrInvalidCursor):
		return errors.Internal(op+": "+err.Error(), errors.WithCause(err))
	case stderrors.Is(err, store.ErrClosed):
		return errors.WrapWithCode(err, errors.ErrCodeStore, op+": store closed")
	}
	var opts []errors.Option
	if id != "" {
		opts = append(opts, errors.WithMessageID(id))
	}
	return errors.Wrap(err, op, opts...)
}
