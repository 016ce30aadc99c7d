package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with mailbox-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include message content in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// --- Mailbox Spans ---

// MailboxSpanOptions describes the outcome of a mailbox operation.
type MailboxSpanOptions struct {
	AgentID     string
	MessageID   string
	MessageType string
	Status      string
	Scanned     int    // Entries examined by a listing
	Returned    int    // Messages returned by a listing
	Title       string // Only included if debug=true
}

// StartMailboxSpan starts a span for an orchestrator operation.
func (t *Tracer) StartMailboxSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "collab."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("collab.operation", op))
	return ctx, span
}

// EndMailboxSpan ends a mailbox span with attributes.
func (t *Tracer) EndMailboxSpan(span trace.Span, opts MailboxSpanOptions, err error) {
	var attrs []attribute.KeyValue
	if opts.AgentID != "" {
		attrs = append(attrs, attribute.String("agent.id", opts.AgentID))
	}
	if opts.MessageID != "" {
		attrs = append(attrs, attribute.String("message.id", opts.MessageID))
	}
	if opts.MessageType != "" {
		attrs = append(attrs, attribute.String("message.type", opts.MessageType))
	}
	if opts.Status != "" {
		attrs = append(attrs, attribute.String("message.status", opts.Status))
	}
	if opts.Scanned > 0 || opts.Returned > 0 {
		attrs = append(attrs,
			attribute.Int("listing.scanned", opts.Scanned),
			attribute.Int("listing.returned", opts.Returned),
		)
	}
	if t.debug && opts.Title != "" {
		attrs = append(attrs, attribute.String("message.title", truncate(opts.Title, 500)))
	}

	span.SetAttributes(attrs...)
	finish(span, err)
}

// StartStoreSpan starts a client span for one object store call.
func (t *Tracer) StartStoreSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient))
	if key != "" {
		span.SetAttributes(attribute.String("store.key", key))
	}
	return ctx, span
}

// EndStoreSpan ends a store span.
func (t *Tracer) EndStoreSpan(span trace.Span, err error) {
	finish(span, err)
}

// --- Tool Spans ---

// ToolSpanOptions contains options for tool execution spans.
type ToolSpanOptions struct {
	Tool      string
	Operation string
	Result    string // Only included if debug=true
}

// StartToolSpan starts a span for a tool execution.
func (t *Tracer) StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "tool."+toolName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("tool.name", toolName))
	return ctx, span
}

// EndToolSpan ends a tool span with attributes.
func (t *Tracer) EndToolSpan(span trace.Span, opts ToolSpanOptions, err error) {
	if opts.Operation != "" {
		span.SetAttributes(attribute.String("tool.operation", opts.Operation))
	}

	// Result only in debug mode (may contain user data)
	if t.debug && opts.Result != "" {
		span.SetAttributes(attribute.String("tool.result", truncate(opts.Result, 4000)))
	}

	finish(span, err)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
