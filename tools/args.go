package tools

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/agentcollab/errors"
)

// Args wraps tool arguments with typed accessor methods.
type Args map[string]any

// String gets a required, non-empty string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", errors.InvalidInput(key+" is required", errors.WithMetadata("argument", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("%s must be a string, got %T", key, v), errors.WithMetadata("argument", key))
	}
	if s == "" {
		return "", errors.InvalidInput(key+" is required", errors.WithMetadata("argument", key))
	}
	return s, nil
}

// StringOr gets an optional string argument with a default.
func (a Args) StringOr(key, defaultVal string) string {
	v, ok := a[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// FirstString returns the first non-empty string among keys.
func (a Args) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := a.StringOr(k, ""); s != "" {
			return s
		}
	}
	return ""
}

// IntOr gets an optional integer argument with a default.
// Handles both int and float64 (JSON numbers decode as float64).
func (a Args) IntOr(key string, defaultVal int) int {
	v, ok := a[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return defaultVal
	}
}

// Object gets an optional JSON object argument. A string is parsed as JSON,
// which lets command-line callers pass objects as text. Absent keys return
// nil.
func (a Args) Object(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch obj := v.(type) {
	case map[string]any:
		return obj, nil
	case string:
		if obj == "" {
			return nil, nil
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
			return nil, errors.InvalidInput(key+" must be a JSON object", errors.WithCause(err), errors.WithMetadata("argument", key))
		}
		return parsed, nil
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("%s must be an object, got %T", key, v), errors.WithMetadata("argument", key))
	}
}

// Has returns true if the key exists in the arguments.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}
