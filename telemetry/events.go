// Package telemetry provides tracing and mailbox event export.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Exporter receives mailbox events as they happen.
type Exporter interface {
	// Record queues or writes one event.
	Record(ev Event)
	// Flush sends any buffered data.
	Flush() error
	// Close closes the exporter.
	Close() error
}

// Event is one mailbox state change.
type Event struct {
	Name        string         `json:"name"`
	Timestamp   time.Time      `json:"timestamp"`
	AgentID     string         `json:"agent_id"`
	MessageID   string         `json:"message_id,omitempty"`
	MessageType string         `json:"message_type,omitempty"`
	Status      string         `json:"status,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Event names.
const (
	EventMessagePosted = "message_posted"
	EventStatusUpdated = "status_updated"
	EventTaskClaimed   = "task_claimed"
	EventTaskCompleted = "task_completed"
)

// NewExporter creates a new exporter based on protocol.
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		if endpoint == "" {
			return nil, fmt.Errorf("http event exporter needs an endpoint")
		}
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown event protocol: %s", protocol)
	}
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// --- HTTP Exporter ---

// HTTPExporter posts batches of events as a JSON array. Delivery is at
// most once: a batch the endpoint rejects is dropped and counted.
type HTTPExporter struct {
	endpoint string
	client   *http.Client
	buffer   []Event
	mu       sync.Mutex
	dropped  atomic.Int64
}

// httpBatchSize is the buffer length that triggers a send.
const httpBatchSize = 100

// NewHTTPExporter creates a new HTTP exporter.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		buffer: make([]Event, 0, httpBatchSize),
	}
}

func (e *HTTPExporter) Record(ev Event) {
	e.mu.Lock()
	e.buffer = append(e.buffer, stamp(ev))
	var batch []Event
	if len(e.buffer) >= httpBatchSize {
		batch = e.take()
	}
	e.mu.Unlock()

	if batch != nil {
		e.send(batch)
	}
}

func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	batch := e.take()
	e.mu.Unlock()

	if batch == nil {
		return nil
	}
	return e.send(batch)
}

// Dropped returns the number of events lost to failed sends.
func (e *HTTPExporter) Dropped() int64 {
	return e.dropped.Load()
}

// take detaches the buffered events. Callers hold mu.
func (e *HTTPExporter) take() []Event {
	if len(e.buffer) == 0 {
		return nil
	}
	batch := e.buffer
	e.buffer = make([]Event, 0, httpBatchSize)
	return batch
}

func (e *HTTPExporter) send(batch []Event) error {
	if err := e.post(batch); err != nil {
		e.dropped.Add(int64(len(batch)))
		return err
	}
	return nil
}

func (e *HTTPExporter) post(batch []Event) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("event endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a JSON Lines file.
type FileExporter struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileExporter creates a new file exporter.
func NewFileExporter(path string) (*FileExporter, error) {
	if path == "" {
		return nil, fmt.Errorf("file event exporter needs a path")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return &FileExporter{file: file}, nil
}

func (e *FileExporter) Record(ev Event) {
	data, err := json.Marshal(stamp(ev))
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(append(data, '\n'))
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) Record(ev Event) {}
func (e *NoopExporter) Flush() error    { return nil }
func (e *NoopExporter) Close() error    { return nil }
