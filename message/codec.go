package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vinayprograms/agentcollab/errors"
)

// envelopeSchema constrains only the required fields. Optional fields are
// checked by hand so that a bad value degrades to its default.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "timestamp", "agent_id", "message_type", "title", "content"],
  "properties": {
    "id":           {"type": "string", "minLength": 1},
    "timestamp":    {"type": "string", "minLength": 1},
    "agent_id":     {"type": "string"},
    "message_type": {"type": "string", "minLength": 1},
    "title":        {"type": "string"},
    "content":      {"type": "string"}
  }
}`

var schema = mustCompileSchema(envelopeSchema)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("message: compile envelope schema: %v", err))
	}
	return s
}

// envelope fixes the field order of the wire format.
type envelope struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	AgentID     string         `json:"agent_id"`
	MessageType string         `json:"message_type"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`
	Context     map[string]any `json:"context"`
	InReplyTo   *string        `json:"in_reply_to"`
}

// Encode renders m as canonical JSON: fixed envelope field order, sorted
// context keys, two-space indentation and a trailing newline.
func Encode(m *Message) ([]byte, error) {
	env := envelope{
		ID:          m.ID,
		Timestamp:   FormatTimestamp(m.Timestamp),
		AgentID:     m.AgentID,
		MessageType: string(m.Type),
		Title:       m.Title,
		Content:     m.Content,
		Priority:    string(m.Priority),
		Status:      string(m.Status),
		Context:     m.Context,
	}
	if env.Context == nil {
		env.Context = map[string]any{}
	}
	if m.InReplyTo != "" {
		ref := m.InReplyTo
		env.InReplyTo = &ref
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "encode message", errors.WithMessageID(m.ID))
	}
	return buf.Bytes(), nil
}

// Decode parses a stored envelope. It fails with a DECODE error only when a
// required field is missing or malformed; optional fields take defaults
// (priority normal, status pending, empty context, no reply reference).
func Decode(data []byte) (*Message, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Decode("message is not valid JSON", errors.WithCause(err))
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			problems = append(problems, re.String())
		}
		return nil, errors.Decode("message envelope invalid: " + strings.Join(problems, "; "))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Decode("message is not a JSON object", errors.WithCause(err))
	}

	m := &Message{
		ID:       requiredString(raw, "id"),
		AgentID:  requiredString(raw, "agent_id"),
		Type:     Type(requiredString(raw, "message_type")),
		Title:    requiredString(raw, "title"),
		Content:  requiredString(raw, "content"),
		Priority: Priority(optionalString(raw, "priority", string(PriorityNormal))),
		Status:   Status(optionalString(raw, "status", string(StatusPending))),
		Context:  optionalObject(raw, "context"),
	}
	m.InReplyTo = optionalString(raw, "in_reply_to", "")

	ts, err := time.Parse(time.RFC3339Nano, requiredString(raw, "timestamp"))
	if err != nil {
		return nil, errors.Decode("message timestamp malformed", errors.WithCause(err), errors.WithMessageID(m.ID))
	}
	m.Timestamp = Normalize(ts)

	return m, nil
}

// requiredString reads a field the schema has already checked.
func requiredString(raw map[string]json.RawMessage, key string) string {
	var s string
	_ = json.Unmarshal(raw[key], &s)
	return s
}

func optionalString(raw map[string]json.RawMessage, key, def string) string {
	v, ok := raw[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return def
	}
	return s
}

func optionalObject(raw map[string]json.RawMessage, key string) map[string]any {
	obj := map[string]any{}
	if v, ok := raw[key]; ok {
		var decoded map[string]any
		if err := json.Unmarshal(v, &decoded); err == nil && decoded != nil {
			obj = decoded
		}
	}
	return obj
}
