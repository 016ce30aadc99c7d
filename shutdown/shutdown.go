// Package shutdown releases the resources behind an open mailbox in ordered
// phases.
//
// A CLI invocation opens an orchestrator, a backend connection and telemetry
// exporters. They must be closed in dependency order: the orchestrator
// flushes events and closes its store before the connection it rides on goes
// away, and spans are exported last.
//
//	seq := shutdown.New(5*time.Second, nil)
//	seq.Add("orchestrator", shutdown.PhaseMailbox, shutdown.Closer(orch))
//	seq.Add("nats", shutdown.PhaseConnections, func(context.Context) error { nc.Close(); return nil })
//	seq.Add("tracing", shutdown.PhaseTelemetry, provider.Shutdown)
//	defer seq.Close()
//
// Handlers in the same phase run concurrently. A failing handler does not
// stop later phases.
package shutdown

import (
	"context"
	"errors"
	"io"
	"time"
)

// Phases used by the mailbox CLI. Lower phases run first.
const (
	PhaseMailbox     = 10
	PhaseConnections = 20
	PhaseTelemetry   = 30
)

var (
	// ErrTimeout indicates the sequence did not finish before its deadline.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Handler releases one resource.
type Handler func(ctx context.Context) error

// Closer adapts an io.Closer to a Handler.
func Closer(c io.Closer) Handler {
	return func(context.Context) error {
		return c.Close()
	}
}

// Result records how one handler went.
type Result struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// FailedHandlers returns the names of handlers that failed.
func FailedHandlers(results []Result) []string {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Name)
		}
	}
	return failed
}

type registration struct {
	name    string
	phase   int
	handler Handler
}
