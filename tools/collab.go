package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vinayprograms/agentcollab/collab"
	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/message"
	"github.com/vinayprograms/agentcollab/telemetry"
)

// CollabToolName is the registered name of the mailbox tool.
const CollabToolName = "m365_collab"

// Operations lists the operations the mailbox tool accepts.
var Operations = []string{
	"post_message",
	"post_task",
	"post_status",
	"post_handoff",
	"get_messages",
	"get_message",
	"get_pending_tasks",
	"claim_task",
	"complete_task",
}

// Mailbox is the subset of the orchestrator the tool drives.
type Mailbox interface {
	PostMessage(ctx context.Context, opts collab.PostOptions) (*message.Message, error)
	PostTask(ctx context.Context, title, description string, priority message.Priority, taskContext map[string]any) (*message.Message, error)
	PostStatus(ctx context.Context, title, statusText, taskID string) (*message.Message, error)
	PostHandoff(ctx context.Context, title, description string, handoffContext map[string]any, targetAgent string) (*message.Message, error)
	GetMessages(ctx context.Context, f collab.Filter) ([]*message.Message, error)
	GetMessage(ctx context.Context, id string) (*message.Message, error)
	GetPendingTasks(ctx context.Context) ([]*message.Message, error)
	ClaimTask(ctx context.Context, id string) (*message.Message, error)
	CompleteTask(ctx context.Context, id string, result map[string]any) (*message.Message, error)
}

// CollabTool exposes a Mailbox as a single tool keyed by "operation".
type CollabTool struct {
	mailbox Mailbox
	schema  *gojsonschema.Schema
	log     *logging.Logger
	tracer  *telemetry.Tracer
}

// NewCollabTool creates the mailbox tool.
func NewCollabTool(mb Mailbox, log *logging.Logger) (*CollabTool, error) {
	if log == nil {
		log = logging.Nop()
	}
	t := &CollabTool{
		mailbox: mb,
		log:     log.WithComponent("tool"),
		tracer:  telemetry.GetTracer(),
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters()))
	if err != nil {
		return nil, errors.Internal("compile tool schema", errors.WithCause(err))
	}
	t.schema = schema
	return t, nil
}

// SetTracer replaces the tracer used for tool spans.
func (t *CollabTool) SetTracer(tr *telemetry.Tracer) {
	if tr != nil {
		t.tracer = tr
	}
}

func (t *CollabTool) Name() string { return CollabToolName }

func (t *CollabTool) Description() string {
	return `Agent collaboration through a shared mailbox.

Agents post and read messages in a shared folder: tasks, status updates and
work handoffs.

Operations:
- post_task: Post a task for other agents (title, description, priority?, context?)
- get_pending_tasks: Get unclaimed tasks
- claim_task: Claim a task (task_id)
- complete_task: Mark task done (task_id, result?)
- post_status: Post status update (title, status_text, task_id?)
- post_handoff: Hand off work (title, description, context?, target_agent?)
- get_messages: Get recent messages (message_type?, status?, limit?)
- get_message: Read one message (message_id)
- post_message: Post general message (title, content, message_type?, in_reply_to?)`
}

func (t *CollabTool) Parameters() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	enum := func(values ...string) map[string]any {
		return map[string]any{"type": "string", "enum": values}
	}
	types := make([]string, len(message.Types))
	for i, mt := range message.Types {
		types[i] = string(mt)
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"description": "Operation to perform",
				"enum":        Operations,
			},
			"title":        str("Message/task title"),
			"content":      str("Message content"),
			"description":  str("Task description"),
			"status_text":  str("Status update text"),
			"task_id":      str("Task ID to claim/complete"),
			"message_id":   str("Message ID to read"),
			"target_agent": str("Agent a handoff is addressed to"),
			"in_reply_to":  str("ID of the message being answered"),
			"priority":     enum(string(message.PriorityHigh), string(message.PriorityNormal), string(message.PriorityLow)),
			"message_type": enum(types...),
			"status": enum(string(message.StatusPending), string(message.StatusInProgress),
				string(message.StatusCompleted), string(message.StatusFailed)),
			"context": map[string]any{"type": []string{"object", "string"}, "description": "Additional context data"},
			"result":  map[string]any{"type": []string{"object", "string"}, "description": "Task completion result"},
			"limit":   map[string]any{"type": "integer", "minimum": 1, "description": "Max messages to return"},
		},
		"required": []string{"operation"},
	}
}

// Execute runs one operation. Failures are reported in the returned
// *Result, never as an error.
func (t *CollabTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Run(ctx, Args(args)), nil
}

// Run is Execute with a typed result.
func (t *CollabTool) Run(ctx context.Context, args Args) (res *Result) {
	op := args.StringOr("operation", "")
	ctx, span := t.tracer.StartToolSpan(ctx, t.Name())
	defer func() {
		var err error
		if res.Err != nil {
			err = res.Err
			t.log.OperationFailed(op, res.Err)
		}
		t.tracer.EndToolSpan(span, telemetry.ToolSpanOptions{Tool: t.Name(), Operation: op, Result: res.Key}, err)
	}()

	if err := t.validate(args); err != nil {
		return failure(op, err)
	}

	var (
		m    *message.Message
		msgs []*message.Message
		key  string
		err  error
	)

	switch op {
	case "post_message":
		m, err = t.postMessage(ctx, args)
		key = KeyMessage
	case "post_task":
		m, err = t.postTask(ctx, args)
		key = KeyTask
	case "post_status":
		m, err = t.postStatus(ctx, args)
		key = KeyStatus
	case "post_handoff":
		m, err = t.postHandoff(ctx, args)
		key = KeyHandoff
	case "get_messages":
		msgs, err = t.mailbox.GetMessages(ctx, collab.Filter{
			Type:   message.Type(args.StringOr("message_type", "")),
			Status: message.Status(args.StringOr("status", "")),
			Limit:  args.IntOr("limit", 0),
		})
		key = KeyMessages
	case "get_message":
		var id string
		if id = args.FirstString("message_id", "task_id"); id == "" {
			err = errors.InvalidInput("message_id is required", errors.WithMetadata("argument", "message_id"))
			break
		}
		m, err = t.mailbox.GetMessage(ctx, id)
		key = KeyMessage
	case "get_pending_tasks":
		msgs, err = t.mailbox.GetPendingTasks(ctx)
		key = KeyTasks
	case "claim_task":
		var id string
		if id, err = args.String("task_id"); err == nil {
			m, err = t.mailbox.ClaimTask(ctx, id)
		}
		key = KeyTask
	case "complete_task":
		m, err = t.completeTask(ctx, args)
		key = KeyTask
	default:
		err = errors.InvalidInput("unknown operation: " + op)
	}

	if err != nil {
		return failure(op, err)
	}
	return &Result{Operation: op, Key: key, Message: m, Messages: msgs}
}

// validate checks args against the parameter schema.
func (t *CollabTool) validate(args Args) error {
	if op := args.StringOr("operation", ""); op == "" {
		return errors.InvalidInput("operation is required", errors.WithMetadata("argument", "operation"))
	}
	result, err := t.schema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
	if err != nil {
		return errors.InvalidInput("arguments are not valid JSON", errors.WithCause(err))
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return errors.InvalidInput("invalid arguments: " + strings.Join(problems, "; "))
}

func (t *CollabTool) postMessage(ctx context.Context, args Args) (*message.Message, error) {
	title, err := args.String("title")
	if err != nil {
		return nil, err
	}
	msgContext, err := args.Object("context")
	if err != nil {
		return nil, err
	}
	return t.mailbox.PostMessage(ctx, collab.PostOptions{
		Title:     title,
		Content:   args.FirstString("content", "description"),
		Type:      message.Type(args.StringOr("message_type", "")),
		Priority:  message.Priority(args.StringOr("priority", "")),
		Context:   msgContext,
		InReplyTo: args.StringOr("in_reply_to", ""),
	})
}

func (t *CollabTool) postTask(ctx context.Context, args Args) (*message.Message, error) {
	title, err := args.String("title")
	if err != nil {
		return nil, err
	}
	taskContext, err := args.Object("context")
	if err != nil {
		return nil, err
	}
	return t.mailbox.PostTask(ctx, title, args.FirstString("description", "content"),
		message.Priority(args.StringOr("priority", "")), taskContext)
}

func (t *CollabTool) postStatus(ctx context.Context, args Args) (*message.Message, error) {
	title, err := args.String("title")
	if err != nil {
		return nil, err
	}
	return t.mailbox.PostStatus(ctx, title, args.FirstString("status_text", "content"), args.StringOr("task_id", ""))
}

func (t *CollabTool) postHandoff(ctx context.Context, args Args) (*message.Message, error) {
	title, err := args.String("title")
	if err != nil {
		return nil, err
	}
	handoffContext, err := args.Object("context")
	if err != nil {
		return nil, err
	}
	return t.mailbox.PostHandoff(ctx, title, args.FirstString("description", "content"),
		handoffContext, args.StringOr("target_agent", ""))
}

func (t *CollabTool) completeTask(ctx context.Context, args Args) (*message.Message, error) {
	id, err := args.String("task_id")
	if err != nil {
		return nil, err
	}
	result, err := args.Object("result")
	if err != nil {
		return nil, err
	}
	return t.mailbox.CompleteTask(ctx, id, result)
}

// Summary renders a short human-readable line set for a result.
func Summary(r *Result) string {
	if r.Err != nil {
		return fmt.Sprintf("✗ Error: %s", r.Err.Message())
	}

	var b strings.Builder
	switch r.Key {
	case KeyTask:
		m := r.Message
		fmt.Fprintf(&b, "✓ Task: %s (id: %s, status: %s)", m.Title, m.ID, m.Status)
	case KeyTasks:
		fmt.Fprintf(&b, "Found %d pending tasks:", len(r.Messages))
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "\n  - [%s] %s (id: %s)", m.Priority, m.Title, m.ID)
			fmt.Fprintf(&b, "\n    %s", truncate(m.Content, 100))
		}
	case KeyMessages:
		fmt.Fprintf(&b, "Found %d messages:", len(r.Messages))
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "\n  [%s] %s (%s)", m.Type, m.Title, m.Status)
		}
	case KeyStatus:
		fmt.Fprintf(&b, "✓ Status posted: %s (id: %s)", r.Message.Title, r.Message.ID)
	case KeyHandoff:
		fmt.Fprintf(&b, "✓ Handoff posted: %s (id: %s)", r.Message.Title, r.Message.ID)
	case KeyMessage:
		m := r.Message
		if r.Operation == "get_message" {
			fmt.Fprintf(&b, "[%s] %s (id: %s, status: %s)\n%s", m.Type, m.Title, m.ID, m.Status, m.Content)
		} else {
			fmt.Fprintf(&b, "✓ Message posted: %s (id: %s)", m.Title, m.ID)
		}
	}
	return b.String()
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
