package tools

import (
	"encoding/json"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/message"
)

// Payload keys used by Result, one per operation family.
const (
	KeyMessage  = "message"
	KeyTask     = "task"
	KeyStatus   = "status"
	KeyHandoff  = "handoff"
	KeyMessages = "messages"
	KeyTasks    = "tasks"
)

// Result is the outcome of one tool call. Exactly one of Message, Messages
// or Err is meaningful: a failed call carries Err, a listing carries
// Messages, anything else carries Message.
type Result struct {
	Operation string

	// Key names the payload field: "task", "messages" and so on.
	Key string

	Message  *message.Message
	Messages []*message.Message

	Err *errors.Error
}

// Success reports whether the call succeeded.
func (r *Result) Success() bool {
	return r.Err == nil
}

// ErrorKind returns the error code of a failed call, or "".
func (r *Result) ErrorKind() errors.ErrorCode {
	if r.Err == nil {
		return ""
	}
	return r.Err.Code()
}

// IsList reports whether the payload is a message list.
func (r *Result) IsList() bool {
	return r.Key == KeyMessages || r.Key == KeyTasks
}

func failure(op string, err error) *Result {
	coded := errors.AsError(err)
	if coded == nil {
		coded = errors.Wrap(err, err.Error())
	}
	return &Result{Operation: op, Err: coded}
}

// MarshalJSON renders the result as
// {"success":true,"<key>":{...}} or {"success":false,"error":"...","error_kind":"<CODE>"}.
// Messages use their canonical envelope encoding.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{"success": r.Success()}
	if r.Err != nil {
		out["error"] = r.Err.Error()
		out["error_kind"] = string(r.Err.Code())
		if id := r.Err.MessageID(); id != "" {
			out["message_id"] = id
		}
		return json.Marshal(out)
	}

	if r.IsList() {
		list := make([]json.RawMessage, 0, len(r.Messages))
		for _, m := range r.Messages {
			raw, err := message.Encode(m)
			if err != nil {
				return nil, err
			}
			list = append(list, raw)
		}
		out[r.Key] = list
		out["count"] = len(list)
		return json.Marshal(out)
	}

	raw, err := message.Encode(r.Message)
	if err != nil {
		return nil, err
	}
	out[r.Key] = json.RawMessage(raw)
	return json.Marshal(out)
}
