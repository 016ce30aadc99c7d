package collab

import (
	"context"
	"time"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/message"
	"github.com/vinayprograms/agentcollab/store"
	"github.com/vinayprograms/agentcollab/telemetry"
)

// UpdateMessageStatus sets the status of a message, stamps it with the
// current time and merges patch into its context. The whole message is
// rewritten. A missing message is a NOT_FOUND error; in CAS mode a
// concurrent modification is a CONFLICT error.
func (o *Orchestrator) UpdateMessageStatus(ctx context.Context, id string, status message.Status, patch map[string]any) (*message.Message, error) {
	return o.update(ctx, "update_message_status", telemetry.EventStatusUpdated, id, status, o.timestamp(), patch)
}

// ClaimTask marks a task in progress and records this agent as claimant.
func (o *Orchestrator) ClaimTask(ctx context.Context, id string) (*message.Message, error) {
	now := o.timestamp()
	return o.update(ctx, "claim_task", telemetry.EventTaskClaimed, id, message.StatusInProgress, now, map[string]any{
		message.ContextClaimedBy: o.agentID,
		message.ContextClaimedAt: message.FormatTimestamp(now),
	})
}

// CompleteTask marks a task completed and records the result. A nil result
// is stored as an empty object.
func (o *Orchestrator) CompleteTask(ctx context.Context, id string, result map[string]any) (*message.Message, error) {
	if result == nil {
		result = map[string]any{}
	}
	return o.update(ctx, "complete_task", telemetry.EventTaskCompleted, id, message.StatusCompleted, o.timestamp(), map[string]any{
		message.ContextCompletedBy: o.agentID,
		message.ContextResult:      result,
	})
}

// GetPendingTasks lists pending tasks, most recently modified first.
func (o *Orchestrator) GetPendingTasks(ctx context.Context) ([]*message.Message, error) {
	return o.GetMessages(ctx, Filter{Type: message.TypeTask, Status: message.StatusPending})
}

func (o *Orchestrator) update(ctx context.Context, op, event, id string, status message.Status, now time.Time, patch map[string]any) (m *message.Message, err error) {
	start := time.Now()
	ctx, span := o.tracer.StartMailboxSpan(ctx, op)
	defer func() {
		so := telemetry.MailboxSpanOptions{AgentID: o.agentID, MessageID: message.IDFromKey(id), Status: string(status)}
		if m != nil {
			so.MessageType = string(m.Type)
		}
		o.tracer.EndMailboxSpan(span, so, err)
	}()

	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if status == "" {
		return nil, errors.InvalidInput("status required", errors.WithMessageID(id))
	}
	if err := o.ensureContainer(ctx); err != nil {
		return nil, err
	}

	current, etag, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	current.Status = status
	current.Timestamp = now
	current.MergeContext(patch)

	data, err := message.Encode(current)
	if err != nil {
		return nil, err
	}

	var putOpts store.PutOptions
	if o.concurrency == ConcurrencyCAS {
		putOpts.IfMatch = etag
	}

	key := message.Key(id)
	sctx, sspan := o.tracer.StartStoreSpan(ctx, "put", key)
	_, err = o.store.Put(sctx, key, data, putOpts)
	o.tracer.EndStoreSpan(sspan, err)
	if err != nil {
		err = storeError(err, op, current.ID)
		o.log.OperationFailed(op, err)
		return nil, err
	}

	o.log.StatusUpdated(current.ID, string(status), time.Since(start))
	o.record(event, current, nil)
	return current, nil
}
