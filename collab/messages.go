package collab

import (
	"context"
	stderrors "errors"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/message"
	"github.com/vinayprograms/agentcollab/store"
	"github.com/vinayprograms/agentcollab/telemetry"
)

// PostOptions describes a new message.
type PostOptions struct {
	Title   string
	Content string

	// Type defaults to message.TypeMessage.
	Type message.Type

	// Priority defaults to normal, or high for handoffs.
	Priority message.Priority

	// Context is copied; the caller's map is never retained.
	Context map[string]any

	InReplyTo string
}

// PostMessage writes a new message and returns it. The store is not re-read.
func (o *Orchestrator) PostMessage(ctx context.Context, opts PostOptions) (m *message.Message, err error) {
	ctx, span := o.tracer.StartMailboxSpan(ctx, "post_message")
	defer func() {
		so := telemetry.MailboxSpanOptions{AgentID: o.agentID, Title: opts.Title}
		if m != nil {
			so.MessageID, so.MessageType, so.Status = m.ID, string(m.Type), string(m.Status)
		}
		o.tracer.EndMailboxSpan(span, so, err)
	}()

	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if err := o.ensureContainer(ctx); err != nil {
		return nil, err
	}

	typ := opts.Type
	if typ == "" {
		typ = message.TypeMessage
	}
	priority := opts.Priority
	if priority == "" {
		priority = message.DefaultPriority(typ)
	}

	m = &message.Message{
		Timestamp: o.timestamp(),
		AgentID:   o.agentID,
		Type:      typ,
		Title:     opts.Title,
		Content:   opts.Content,
		Priority:  priority,
		Status:    message.DefaultStatus(typ),
		InReplyTo: opts.InReplyTo,
	}
	m.MergeContext(opts.Context)

	if err := o.write(ctx, m); err != nil {
		o.log.OperationFailed("post_message", err)
		return nil, err
	}

	o.log.MessagePosted(m.ID, string(m.Type))
	o.record(telemetry.EventMessagePosted, m, nil)
	return m, nil
}

// write stores a new message under a fresh id. In CAS mode the write is
// create-only and a taken id is replaced, up to maxPostAttempts times.
func (o *Orchestrator) write(ctx context.Context, m *message.Message) error {
	var putOpts store.PutOptions
	attempts := 1
	if o.concurrency == ConcurrencyCAS {
		putOpts.IfNoneMatch = true
		attempts = maxPostAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		m.ID = o.idGen()
		var data []byte
		data, err = message.Encode(m)
		if err != nil {
			return err
		}

		sctx, span := o.tracer.StartStoreSpan(ctx, "put", m.Key())
		_, err = o.store.Put(sctx, m.Key(), data, putOpts)
		o.tracer.EndStoreSpan(span, err)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, store.ErrPreconditionFailed) {
			return storeError(err, "post message", m.ID)
		}
		o.log.Warn("message id taken, regenerating", logging.Fields{"id": m.ID})
	}
	return errors.Conflict(m.ID, errors.WithCause(err))
}

// PostTask posts a pending task.
func (o *Orchestrator) PostTask(ctx context.Context, title, description string, priority message.Priority, taskContext map[string]any) (*message.Message, error) {
	return o.PostMessage(ctx, PostOptions{
		Title:    title,
		Content:  description,
		Type:     message.TypeTask,
		Priority: priority,
		Context:  taskContext,
	})
}

// PostStatus posts a status update, optionally replying to a task.
func (o *Orchestrator) PostStatus(ctx context.Context, title, statusText, taskID string) (*message.Message, error) {
	return o.PostMessage(ctx, PostOptions{
		Title:     title,
		Content:   statusText,
		Type:      message.TypeStatus,
		InReplyTo: message.IDFromKey(taskID),
	})
}

// PostHandoff posts a high priority handoff. A non-empty targetAgent is
// recorded as context["target_agent"].
func (o *Orchestrator) PostHandoff(ctx context.Context, title, description string, handoffContext map[string]any, targetAgent string) (*message.Message, error) {
	merged := make(map[string]any, len(handoffContext)+1)
	for k, v := range handoffContext {
		merged[k] = v
	}
	if targetAgent != "" {
		merged[message.ContextTargetAgent] = targetAgent
	}
	return o.PostMessage(ctx, PostOptions{
		Title:    title,
		Content:  description,
		Type:     message.TypeHandoff,
		Priority: message.PriorityHigh,
		Context:  merged,
	})
}

// Filter selects messages in GetMessages. Empty fields match everything.
type Filter struct {
	Type   message.Type
	Status message.Status

	// Limit caps the result. Zero means DefaultLimit.
	Limit int
}

func (f Filter) matches(m *message.Message) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	return true
}

// GetMessages returns up to f.Limit matching messages, most recently
// modified first. Entries that are not messages are ignored and entries
// that fail to decode are skipped with a warning.
func (o *Orchestrator) GetMessages(ctx context.Context, f Filter) (msgs []*message.Message, err error) {
	ctx, span := o.tracer.StartMailboxSpan(ctx, "get_messages")
	scanned := 0
	defer func() {
		o.tracer.EndMailboxSpan(span, telemetry.MailboxSpanOptions{
			AgentID:     o.agentID,
			MessageType: string(f.Type),
			Status:      string(f.Status),
			Scanned:     scanned,
			Returned:    len(msgs),
		}, err)
	}()

	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	msgs = []*message.Message{}
	cursor := ""
	for scanned < o.maxScan {
		pageSize := limit
		if remaining := o.maxScan - scanned; pageSize > remaining {
			pageSize = remaining
		}

		sctx, sspan := o.tracer.StartStoreSpan(ctx, "list", "")
		page, err := o.store.List(sctx, store.ListOptions{Limit: pageSize, Cursor: cursor})
		o.tracer.EndStoreSpan(sspan, err)
		if err != nil {
			return nil, storeError(err, "list messages", "")
		}

		for _, entry := range page.Entries {
			scanned++
			m, err := o.fetch(ctx, entry)
			if err != nil {
				return nil, err
			}
			if m != nil && f.matches(m) {
				msgs = append(msgs, m)
				if len(msgs) == limit {
					return msgs, nil
				}
			}
			if scanned >= o.maxScan {
				break
			}
		}

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	if scanned >= o.maxScan && len(msgs) < limit {
		o.log.Debug("listing stopped at scan bound", logging.Fields{"scanned": scanned, "matched": len(msgs)})
	}
	return msgs, nil
}

// fetch downloads and decodes one listed entry. It returns nil without an
// error for entries that should be skipped.
func (o *Orchestrator) fetch(ctx context.Context, entry store.Entry) (*message.Message, error) {
	if !message.IsMessageKey(entry.Key) {
		return nil, nil
	}

	ctx, span := o.tracer.StartStoreSpan(ctx, "fetch", entry.Key)
	obj, err := o.store.Fetch(ctx, entry)
	o.tracer.EndStoreSpan(span, err)
	if stderrors.Is(err, store.ErrNotFound) {
		// Removed between listing and download.
		o.log.MessageSkipped(entry.Key, err)
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "fetch message", message.IDFromKey(entry.Key))
	}

	m, err := message.Decode(obj.Value)
	if err != nil {
		o.log.MessageSkipped(entry.Key, err)
		return nil, nil
	}
	return m, nil
}

// GetMessage reads one message by id. The id may carry the ".json" suffix.
// A missing message is a NOT_FOUND error.
func (o *Orchestrator) GetMessage(ctx context.Context, id string) (m *message.Message, err error) {
	ctx, span := o.tracer.StartMailboxSpan(ctx, "get_message")
	defer func() {
		so := telemetry.MailboxSpanOptions{AgentID: o.agentID, MessageID: message.IDFromKey(id)}
		if m != nil {
			so.MessageType, so.Status = string(m.Type), string(m.Status)
		}
		o.tracer.EndMailboxSpan(span, so, err)
	}()

	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	m, _, err = o.load(ctx, id)
	return m, err
}

// load reads and decodes a message along with the etag it was read at.
func (o *Orchestrator) load(ctx context.Context, id string) (*message.Message, string, error) {
	if id == "" {
		return nil, "", errors.InvalidInput("message id required")
	}
	key := message.Key(id)
	id = message.IDFromKey(id)

	ctx, span := o.tracer.StartStoreSpan(ctx, "get", key)
	obj, err := o.store.Get(ctx, key)
	o.tracer.EndStoreSpan(span, err)
	if err != nil {
		return nil, "", storeError(err, "get message", id)
	}

	m, err := message.Decode(obj.Value)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode message "+id, errors.WithMessageID(id))
	}
	return m, obj.ETag, nil
}
