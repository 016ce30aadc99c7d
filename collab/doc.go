// Package collab coordinates agents through a shared mailbox.
//
// Agents post messages (tasks, status updates, handoffs) into an object
// store container, list them newest first, and move tasks through a small
// lifecycle by rewriting the stored message.
//
// # Basic Usage
//
//	st := store.NewMemoryStore()
//	o := collab.New(st, collab.WithAgentID("planner"))
//	defer o.Close()
//
//	task, err := o.PostTask(ctx, "Review auth module", "Check token refresh", message.PriorityNormal, nil)
//
//	// Another agent picks it up
//	pending, _ := worker.GetPendingTasks(ctx)
//	claimed, err := worker.ClaimTask(ctx, task.ID)
//	// ... do work ...
//	done, err := worker.CompleteTask(ctx, task.ID, map[string]any{"ok": true})
//
// # Task Lifecycle
//
//	pending → in_progress (ClaimTask) → completed (CompleteTask)
//
// UpdateMessageStatus accepts any status, so nothing prevents skipping or
// reversing states. No operation produces failed.
//
// # Concurrency
//
// Status updates are read-modify-write cycles against the store. In
// ConcurrencyCAS mode (the default) the write is conditional on the etag
// that was read and a lost race returns a CONFLICT error. In
// ConcurrencyLastWriterWins mode the write is unconditional and the later
// writer silently wins.
//
// # Listing
//
// GetMessages filters before it limits: it pages through the container
// until enough matches are found, the container is exhausted, or MaxScan
// entries have been examined.
package collab
