// Package store provides the object stores that back an agent mailbox.
//
// A mailbox is one container holding one object per message. The
// ObjectStore interface covers exactly what the coordination engine needs:
// idempotent container creation, listing by last-modified time (newest
// first) with a page size, and get/put by key. Stores offer no locking and
// no transactions; the only concurrency primitive is the conditional write
// expressed through PutOptions.
//
// # Backends
//
//   - MemoryStore: in-process, for tests and single-process use
//   - GraphStore: a SharePoint document library folder via Microsoft Graph
//   - NATSStore: a NATS JetStream key-value bucket
//   - RedisStore: hashes plus a sorted-set index in Redis
//
// # Usage
//
//	st, err := store.NewGraphStore(store.GraphConfig{
//	    Tokens:   provider,
//	    SitePath: "root",
//	    Folder:   "AgentMessages",
//	})
//	if _, err := st.EnsureContainer(ctx); err != nil { ... }
//
//	obj, err := st.Put(ctx, "msg-0123456789ab.json", data, store.PutOptions{IfNoneMatch: true})
//	page, err := st.List(ctx, store.ListOptions{Limit: 50})
//	for _, e := range page.Entries {
//	    obj, err := st.Fetch(ctx, e)
//	}
//
// None of the stores retry. A failed request surfaces as a STORE error
// carrying the status code (0 for transport failures and timeouts).
package store
