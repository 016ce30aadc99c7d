package collab

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/message"
	"github.com/vinayprograms/agentcollab/store"
)

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *store.MemoryStore) {
	st := store.NewMemoryStore()
	o := New(st, append([]Option{WithAgentID("agent-test")}, opts...)...)
	t.Cleanup(func() { o.Close() })
	return o, st
}

// sequence returns an id generator that hands out ids in order.
func sequence(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestPostTask_Defaults(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	task, err := o.PostTask(ctx, "Review", "Check X", "", nil)
	if err != nil {
		t.Fatalf("PostTask failed: %v", err)
	}

	if task.Type != message.TypeTask {
		t.Errorf("Expected type task, got %s", task.Type)
	}
	if task.Status != message.StatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}
	if task.Priority != message.PriorityNormal {
		t.Errorf("Expected priority normal, got %s", task.Priority)
	}
	if !message.ValidID(task.ID) {
		t.Errorf("Expected a msg-<12 hex> id, got %s", task.ID)
	}
	if task.AgentID != "agent-test" {
		t.Errorf("Expected agent-test, got %s", task.AgentID)
	}
	if len(task.Context) != 0 {
		t.Errorf("Expected empty context, got %v", task.Context)
	}

	obj, err := st.Get(ctx, task.ID+".json")
	if err != nil {
		t.Fatalf("Stored message missing: %v", err)
	}
	stored, err := message.Decode(obj.Value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if stored.ID != task.ID || stored.Title != "Review" || stored.Content != "Check X" {
		t.Errorf("Stored message differs: %+v", stored)
	}

	high, _ := o.PostTask(ctx, "Urgent", "Now", message.PriorityHigh, nil)
	if high.Priority != message.PriorityHigh {
		t.Errorf("Expected priority override, got %s", high.Priority)
	}
}

func TestPostMessage_DefaultsToCompleted(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	m, err := o.PostMessage(context.Background(), PostOptions{Title: "hello", Content: "world"})
	if err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	if m.Type != message.TypeMessage {
		t.Errorf("Expected type message, got %s", m.Type)
	}
	if m.Status != message.StatusCompleted {
		t.Errorf("Expected status completed, got %s", m.Status)
	}
}

func TestPostMessage_CopiesContext(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	callerContext := map[string]any{"repo": "api"}
	m, err := o.PostMessage(context.Background(), PostOptions{Title: "t", Content: "c", Context: callerContext})
	if err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	m.Context["extra"] = true
	if _, ok := callerContext["extra"]; ok {
		t.Error("Returned message must not alias the caller's context")
	}
}

func TestPostStatus_RepliesToTask(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, _ := o.PostTask(ctx, "Review", "Check X", "", nil)
	status, err := o.PostStatus(ctx, "Progress", "half done", task.ID)
	if err != nil {
		t.Fatalf("PostStatus failed: %v", err)
	}
	if status.Type != message.TypeStatus || status.Status != message.StatusCompleted {
		t.Errorf("Unexpected status message %+v", status)
	}
	if status.InReplyTo != task.ID {
		t.Errorf("Expected in_reply_to %s, got %s", task.ID, status.InReplyTo)
	}

	loose, _ := o.PostStatus(ctx, "Note", "no task", "")
	if loose.InReplyTo != "" {
		t.Errorf("Expected no reply reference, got %s", loose.InReplyTo)
	}
}

func TestPostHandoff(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	callerContext := map[string]any{"branch": "feature/x"}
	h, err := o.PostHandoff(ctx, "Take over", "Finish the PR", callerContext, "agent-reviewer")
	if err != nil {
		t.Fatalf("PostHandoff failed: %v", err)
	}
	if h.Priority != message.PriorityHigh {
		t.Errorf("Expected priority high, got %s", h.Priority)
	}
	if h.Type != message.TypeHandoff || h.Status != message.StatusCompleted {
		t.Errorf("Unexpected handoff %+v", h)
	}
	if h.Context["target_agent"] != "agent-reviewer" || h.Context["branch"] != "feature/x" {
		t.Errorf("Unexpected context %v", h.Context)
	}
	if _, ok := callerContext["target_agent"]; ok {
		t.Error("Caller's context map must not be mutated")
	}

	untargeted, _ := o.PostHandoff(ctx, "Anyone", "Pick this up", nil, "")
	if _, ok := untargeted.Context["target_agent"]; ok {
		t.Error("target_agent must only be set when given")
	}
}

func TestGetMessages_Filters(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task1, _ := o.PostTask(ctx, "t1", "d", "", nil)
	o.PostStatus(ctx, "s1", "x", task1.ID)
	task2, _ := o.PostTask(ctx, "t2", "d", "", nil)
	o.PostMessage(ctx, PostOptions{Title: "m1", Content: "x"})
	o.ClaimTask(ctx, task2.ID)

	tasks, err := o.GetMessages(ctx, Filter{Type: message.TypeTask})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}
	for _, m := range tasks {
		if m.Type != message.TypeTask {
			t.Errorf("Filter leaked type %s", m.Type)
		}
	}

	pending, _ := o.GetMessages(ctx, Filter{Status: message.StatusPending})
	if len(pending) != 1 || pending[0].ID != task1.ID {
		t.Errorf("Expected only %s pending, got %v", task1.ID, ids(pending))
	}

	all, _ := o.GetMessages(ctx, Filter{})
	if len(all) != 4 {
		t.Errorf("Expected 4 messages, got %d", len(all))
	}
	// The claim rewrote task2, so it is the most recently modified.
	if all[0].ID != task2.ID {
		t.Errorf("Expected %s first, got %v", task2.ID, ids(all))
	}
}

func TestGetMessages_FilterThenLimit(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		o.PostTask(ctx, fmt.Sprintf("task-%d", i), "d", "", nil)
	}
	// Newer messages push the tasks past the first page.
	for i := 0; i < 10; i++ {
		o.PostMessage(ctx, PostOptions{Title: fmt.Sprintf("chat-%d", i), Content: "x"})
	}

	tasks, err := o.GetMessages(ctx, Filter{Type: message.TypeTask, Limit: 3})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(tasks))
	}
	want := []string{"task-4", "task-3", "task-2"}
	for i, m := range tasks {
		if m.Title != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], m.Title)
		}
	}

	recent, _ := o.GetMessages(ctx, Filter{Limit: 4})
	if len(recent) != 4 || recent[0].Title != "chat-9" {
		t.Errorf("Unexpected unfiltered listing %v", titles(recent))
	}
}

func TestGetMessages_MaxScan(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithMaxScan(5))
	ctx := context.Background()

	o.PostTask(ctx, "old task", "d", "", nil)
	for i := 0; i < 6; i++ {
		o.PostMessage(ctx, PostOptions{Title: "chat", Content: "x"})
	}

	tasks, err := o.GetMessages(ctx, Filter{Type: message.TypeTask})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Task beyond the scan bound should not be found, got %v", titles(tasks))
	}
}

func TestGetMessages_SkipsForeignAndCorruptEntries(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New()
	log.SetOutput(&buf)

	o, st := newTestOrchestrator(t, WithLogger(log))
	ctx := context.Background()

	good, _ := o.PostTask(ctx, "good", "d", "", nil)
	st.Put(ctx, "notes.txt", []byte("not a message"), store.PutOptions{})
	st.Put(ctx, "msg-broken000000.json", []byte("{not json"), store.PutOptions{})
	st.Put(ctx, "msg-partial00000.json", []byte(`{"id":"msg-partial00000"}`), store.PutOptions{})

	msgs, err := o.GetMessages(ctx, Filter{})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != good.ID {
		t.Errorf("Expected only the valid message, got %v", ids(msgs))
	}
	if strings.Count(buf.String(), "message_skipped") != 2 {
		t.Errorf("Expected 2 skip warnings, got log:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "notes.txt") {
		t.Error("Non-message entries are ignored silently")
	}
}

func TestGetMessage(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, _ := o.PostTask(ctx, "Review", "Check X", "", map[string]any{"n": 1})

	got, err := o.GetMessage(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.ID != task.ID || got.Context["n"] != float64(1) {
		t.Errorf("Unexpected message %+v", got)
	}

	withSuffix, err := o.GetMessage(ctx, task.ID+".json")
	if err != nil {
		t.Fatalf("GetMessage with suffix failed: %v", err)
	}
	if withSuffix.ID != task.ID {
		t.Errorf("Expected %s, got %s", task.ID, withSuffix.ID)
	}

	_, err = o.GetMessage(ctx, "msg-000000000000")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
	if errors.AsError(err).MessageID() != "msg-000000000000" {
		t.Errorf("NOT_FOUND should carry the id, got %q", errors.AsError(err).MessageID())
	}

	if _, err := o.GetMessage(ctx, ""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT for empty id, got %v", err)
	}
	if _, err := o.GetMessage(ctx, "../secrets"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT for a path, got %v", err)
	}
}

func TestGetMessage_Corrupt(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	st.Put(ctx, "msg-aaaaaaaaaaaa.json", []byte("garbage"), store.PutOptions{})
	if _, err := o.GetMessage(ctx, "msg-aaaaaaaaaaaa"); !errors.Is(err, errors.ErrCodeDecode) {
		t.Errorf("Expected DECODE, got %v", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	poster, st := newTestOrchestrator(t, WithAgentID("planner"), WithClock(now))
	worker := New(st, WithAgentID("worker"), WithClock(now))
	ctx := context.Background()

	task, err := poster.PostTask(ctx, "Review", "Check X", "", nil)
	if err != nil {
		t.Fatalf("PostTask failed: %v", err)
	}
	if task.Status != message.StatusPending {
		t.Fatalf("Expected pending, got %s", task.Status)
	}

	pending, _ := worker.GetPendingTasks(ctx)
	if len(pending) != 1 || pending[0].ID != task.ID {
		t.Fatalf("Expected the task to be pending, got %v", ids(pending))
	}

	claimed, err := worker.ClaimTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}
	if claimed.Status != message.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", claimed.Status)
	}
	if claimed.Context["claimed_by"] != "worker" {
		t.Errorf("Expected claimed_by worker, got %v", claimed.Context["claimed_by"])
	}
	if claimed.Context["claimed_at"] != message.FormatTimestamp(claimed.Timestamp) {
		t.Errorf("claimed_at %v should match the new timestamp %v", claimed.Context["claimed_at"], claimed.Timestamp)
	}
	if !claimed.Timestamp.After(task.Timestamp) {
		t.Error("Status updates must replace the timestamp")
	}
	if claimed.AgentID != "planner" {
		t.Errorf("Author must not change, got %s", claimed.AgentID)
	}

	completed, err := worker.CompleteTask(ctx, task.ID, map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if completed.Status != message.StatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	if completed.Context["completed_by"] != "worker" {
		t.Errorf("Expected completed_by worker, got %v", completed.Context["completed_by"])
	}
	if _, ok := completed.Context["claimed_by"]; !ok {
		t.Error("Context updates merge; claimed_by must survive completion")
	}

	stored, _ := poster.GetMessage(ctx, task.ID)
	result, ok := stored.Context["result"].(map[string]any)
	if !ok || result["ok"] != true {
		t.Errorf("Expected result {ok:true}, got %v", stored.Context["result"])
	}

	pending, _ = poster.GetPendingTasks(ctx)
	for _, m := range pending {
		if m.ID == task.ID {
			t.Error("Completed task still listed as pending")
		}
	}
}

func TestCompleteTask_NilResult(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, _ := o.PostTask(ctx, "t", "d", "", nil)
	done, err := o.CompleteTask(ctx, task.ID, nil)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	result, ok := done.Context["result"].(map[string]any)
	if !ok || len(result) != 0 {
		t.Errorf("Expected empty result object, got %#v", done.Context["result"])
	}
}

func TestCompleteTask_ReturnsStoredForm(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, _ := o.PostTask(ctx, "t", "d", "", map[string]any{"attempt": 1})
	done, err := o.CompleteTask(ctx, task.ID, map[string]any{"count": 3, "files": []string{"a.go"}})
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	stored, err := o.GetMessage(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !reflect.DeepEqual(done.Context, stored.Context) {
		t.Errorf("returned context differs from stored:\n got %#v\nwant %#v", done.Context, stored.Context)
	}
	if stored.Context["attempt"] != float64(1) {
		t.Errorf("Expected attempt 1, got %#v", stored.Context["attempt"])
	}
}

func TestClaimTask_NotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.ClaimTask(context.Background(), "msg-ffffffffffff")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
	if _, err := o.CompleteTask(context.Background(), "msg-ffffffffffff", nil); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateMessageStatus_Permissive(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, _ := o.PostTask(ctx, "t", "d", "", nil)
	o.CompleteTask(ctx, task.ID, nil)

	back, err := o.UpdateMessageStatus(ctx, task.ID, message.StatusPending, nil)
	if err != nil {
		t.Fatalf("Backward transition failed: %v", err)
	}
	if back.Status != message.StatusPending {
		t.Errorf("Expected pending, got %s", back.Status)
	}

	custom, err := o.UpdateMessageStatus(ctx, task.ID, "blocked", map[string]any{"reason": "waiting"})
	if err != nil {
		t.Fatalf("Custom status failed: %v", err)
	}
	if custom.Status != "blocked" || custom.Context["reason"] != "waiting" {
		t.Errorf("Unexpected message %+v", custom)
	}

	if _, err := o.UpdateMessageStatus(ctx, task.ID, "", nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT for empty status, got %v", err)
	}
}

func TestPost_IDCollision(t *testing.T) {
	ctx := context.Background()

	t.Run("cas regenerates", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, WithIDGenerator(sequence(
			"msg-000000000001", "msg-000000000001", "msg-000000000002")))

		first, _ := o.PostTask(ctx, "a", "d", "", nil)
		second, err := o.PostTask(ctx, "b", "d", "", nil)
		if err != nil {
			t.Fatalf("PostTask failed: %v", err)
		}
		if first.ID == second.ID || second.ID != "msg-000000000002" {
			t.Errorf("Expected a regenerated id, got %s and %s", first.ID, second.ID)
		}
		stored, _ := o.GetMessage(ctx, first.ID)
		if stored.Title != "a" {
			t.Error("First message must not be overwritten")
		}
	})

	t.Run("cas gives up", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, WithIDGenerator(sequence("msg-000000000001")))

		o.PostTask(ctx, "a", "d", "", nil)
		if _, err := o.PostTask(ctx, "b", "d", "", nil); !errors.Is(err, errors.ErrCodeConflict) {
			t.Errorf("Expected CONFLICT after repeated collisions, got %v", err)
		}
	})

	t.Run("lww overwrites", func(t *testing.T) {
		o, _ := newTestOrchestrator(t,
			WithConcurrency(ConcurrencyLastWriterWins),
			WithIDGenerator(sequence("msg-000000000001")))

		o.PostTask(ctx, "a", "d", "", nil)
		if _, err := o.PostTask(ctx, "b", "d", "", nil); err != nil {
			t.Fatalf("PostTask failed: %v", err)
		}
		stored, _ := o.GetMessage(ctx, "msg-000000000001")
		if stored.Title != "b" {
			t.Errorf("Expected the later write to win, got %s", stored.Title)
		}
	})
}

// barrierStore holds every Get until n readers have arrived, so concurrent
// read-modify-write cycles all read the same version.
type barrierStore struct {
	store.ObjectStore
	arrived sync.WaitGroup
}

func newBarrierStore(st store.ObjectStore, n int) *barrierStore {
	b := &barrierStore{ObjectStore: st}
	b.arrived.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, key string) (*store.Object, error) {
	obj, err := b.ObjectStore.Get(ctx, key)
	b.arrived.Done()
	b.arrived.Wait()
	return obj, err
}

func concurrentClaims(t *testing.T, mode Concurrency) (claimants []string, errs []error, stored *message.Message) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()

	task, err := New(st, WithAgentID("planner")).PostTask(ctx, "Review", "Check X", "", nil)
	if err != nil {
		t.Fatalf("PostTask failed: %v", err)
	}

	shared := newBarrierStore(st, 2)
	agents := []*Orchestrator{
		New(shared, WithAgentID("worker-a"), WithConcurrency(mode)),
		New(shared, WithAgentID("worker-b"), WithConcurrency(mode)),
	}

	errs = make([]error, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a *Orchestrator) {
			defer wg.Done()
			_, errs[i] = a.ClaimTask(ctx, task.ID)
		}(i, a)
	}
	wg.Wait()

	obj, err := st.Get(ctx, message.Key(task.ID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	stored, err = message.Decode(obj.Value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return []string{"worker-a", "worker-b"}, errs, stored
}

func TestConcurrentClaims_LastWriterWins(t *testing.T) {
	claimants, errs, stored := concurrentClaims(t, ConcurrencyLastWriterWins)

	for i, err := range errs {
		if err != nil {
			t.Errorf("%s: expected success, got %v", claimants[i], err)
		}
	}
	by := stored.Context["claimed_by"]
	if by != claimants[0] && by != claimants[1] {
		t.Errorf("claimed_by should be one of the claimants, got %v", by)
	}
	if stored.Status != message.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", stored.Status)
	}
}

func TestConcurrentClaims_CAS(t *testing.T) {
	claimants, errs, stored := concurrentClaims(t, ConcurrencyCAS)

	winners := 0
	winner := ""
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = claimants[i]
		case errors.Is(err, errors.ErrCodeConflict):
			if !errors.IsRetryable(err) {
				t.Error("CONFLICT should be retryable")
			}
		default:
			t.Errorf("%s: expected CONFLICT, got %v", claimants[i], err)
		}
	}
	if winners != 1 {
		t.Fatalf("Expected exactly one successful claim, got %d", winners)
	}
	if stored.Context["claimed_by"] != winner {
		t.Errorf("Stored claimant %v does not match winner %s", stored.Context["claimed_by"], winner)
	}
}

// failingStore fails every write with the given error.
type failingStore struct {
	store.ObjectStore
	err error
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte, opts store.PutOptions) (*store.Object, error) {
	return nil, f.err
}

func TestPost_StoreFailure(t *testing.T) {
	st := &failingStore{ObjectStore: store.NewMemoryStore(), err: errors.Store(503, "service unavailable")}
	o := New(st)
	defer o.Close()

	_, err := o.PostTask(context.Background(), "t", "d", "", nil)
	if !errors.Is(err, errors.ErrCodeStore) {
		t.Fatalf("Expected STORE, got %v", err)
	}
	if errors.AsError(err).StatusCode() != 503 || !errors.IsRetryable(err) {
		t.Errorf("Expected retryable 503, got %v", err)
	}
}

func TestPost_ContextCanceled(t *testing.T) {
	st := &failingStore{ObjectStore: store.NewMemoryStore(), err: context.Canceled}
	o := New(st)
	defer o.Close()

	_, err := o.PostTask(context.Background(), "t", "d", "", nil)
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Errorf("Expected CANCELED, got %v", err)
	}
}

func TestClose(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := o.PostTask(ctx, "t", "d", "", nil); err == nil {
		t.Error("Expected error after Close")
	}
	if _, err := o.GetMessages(ctx, Filter{}); err == nil {
		t.Error("Expected error after Close")
	}
	if _, err := st.List(ctx, store.ListOptions{}); err != store.ErrClosed {
		t.Errorf("Close should close the store, got %v", err)
	}
}

func ids(msgs []*message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func titles(msgs []*message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Title
	}
	return out
}
