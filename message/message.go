package message

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of a message. It is fixed at creation.
type Type string

const (
	TypeTask     Type = "task"
	TypeStatus   Type = "status"
	TypeMessage  Type = "message"
	TypeHandoff  Type = "handoff"
	TypeQuery    Type = "query"
	TypeResponse Type = "response"
)

// Types lists the known message types.
var Types = []Type{TypeTask, TypeStatus, TypeMessage, TypeHandoff, TypeQuery, TypeResponse}

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Priority orders messages for readers; it has no effect on storage.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Status is the lifecycle state of a message. Only tasks start pending;
// every other type is created completed. Transitions are not validated:
// any status may follow any other.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Context keys written by the task lifecycle operations.
const (
	ContextClaimedBy   = "claimed_by"
	ContextClaimedAt   = "claimed_at"
	ContextCompletedBy = "completed_by"
	ContextResult      = "result"
	ContextTargetAgent = "target_agent"
)

// Message is a single mailbox record.
type Message struct {
	// ID is "msg-" followed by 12 lowercase hex characters. Immutable.
	ID string

	// Timestamp is the creation time, replaced by the time of every
	// status mutation.
	Timestamp time.Time

	// AgentID is the creator. Status updates record their author in
	// Context instead.
	AgentID string

	Type     Type
	Title    string
	Content  string
	Priority Priority
	Status   Status

	// Context is open-ended data. Updates are shallow merges. Values are
	// held in their JSON-decoded form: numbers are float64, objects are
	// map[string]any and arrays are []any.
	Context map[string]any

	// InReplyTo references another message id, or is empty. The target
	// is not required to exist.
	InReplyTo string
}

// DefaultStatus returns the initial status for a message type.
func DefaultStatus(t Type) Status {
	if t == TypeTask {
		return StatusPending
	}
	return StatusCompleted
}

// DefaultPriority returns the initial priority for a message type.
func DefaultPriority(t Type) Priority {
	if t == TypeHandoff {
		return PriorityHigh
	}
	return PriorityNormal
}

// Clone returns a copy whose Context map can be modified independently.
// Nested context values are shared.
func (m *Message) Clone() *Message {
	clone := *m
	clone.Context = make(map[string]any, len(m.Context))
	for k, v := range m.Context {
		clone.Context[k] = v
	}
	return &clone
}

// MergeContext copies patch into Context, overwriting existing keys.
// Nested maps are replaced, not merged, and no key is ever removed.
// Values are stored as they would read back after a round trip through
// the store.
func (m *Message) MergeContext(patch map[string]any) {
	if m.Context == nil {
		m.Context = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		m.Context[k] = jsonValue(v)
	}
}

// jsonValue returns v in its JSON-decoded form. Values that cannot be
// encoded are kept as-is and fail later in Encode.
func jsonValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Key returns the store key of the message.
func (m *Message) Key() string {
	return Key(m.ID)
}

const keySuffix = ".json"

// Key returns the store key for a message id. Ids that already carry the
// ".json" suffix are returned unchanged.
func Key(id string) string {
	if strings.HasSuffix(id, keySuffix) {
		return id
	}
	return id + keySuffix
}

// IDFromKey strips the ".json" suffix from a store key.
func IDFromKey(key string) string {
	return strings.TrimSuffix(key, keySuffix)
}

// IsMessageKey reports whether a listed store entry can hold a message.
func IsMessageKey(key string) bool {
	return strings.HasSuffix(key, keySuffix)
}

var idPattern = regexp.MustCompile(`^msg-[0-9a-f]{12}$`)

// ValidID reports whether id has the "msg-<12 hex>" form.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// NewID returns a fresh message id built from a random UUID.
func NewID() string {
	return "msg-" + randomHex(12)
}

// NewAgentID returns a random agent id for callers that configured none.
func NewAgentID() string {
	return "agent-" + randomHex(8)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// FormatTimestamp renders t as an RFC 3339 UTC instant, the form used in
// the envelope and in lifecycle context values.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Now returns the current time truncated to the precision the envelope keeps.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize strips monotonic clock data and converts t to UTC so that a
// value survives an encode/decode round trip unchanged.
func Normalize(t time.Time) time.Time {
	return t.Round(0).UTC()
}
