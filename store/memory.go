package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements ObjectStore in process memory.
// Useful for testing and single-process scenarios.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]*entry
	revision  uint64
	container bool
	closed    atomic.Bool
	now       func() time.Time
}

type entry struct {
	value    []byte
	revision uint64
	modified time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for modification times.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]*entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureContainer marks the container as existing.
func (s *MemoryStore) EnsureContainer(ctx context.Context) (Ensured, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return 0, ErrClosed
	}

	if s.container {
		return AlreadyExists, nil
	}
	s.container = true
	return Created, nil
}

// List returns entries newest first. Entries modified at the same instant
// are ordered by write order.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (*Page, error) {
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	entries := make([]Entry, 0, len(s.data))
	revs := make(map[string]uint64, len(s.data))
	for key, e := range s.data {
		entries = append(entries, Entry{
			Key:      key,
			ETag:     etagOf(e.revision),
			Modified: e.modified,
			Size:     int64(len(e.value)),
			Handle:   key,
		})
		revs[key] = e.revision
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Modified.After(entries[j].Modified)
		}
		return revs[entries[i].Key] > revs[entries[j].Key]
	})

	return pageOf(entries, opts)
}

// Fetch reads a listed entry.
func (s *MemoryStore) Fetch(ctx context.Context, e Entry) (*Object, error) {
	return s.Get(ctx, e.Key)
}

// Get reads an object by key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent mutation
	val := make([]byte, len(e.value))
	copy(val, e.value)

	return &Object{
		Key:      key,
		Value:    val,
		ETag:     etagOf(e.revision),
		Modified: e.modified,
	}, nil
}

// Put writes an object, honouring the conditions in opts.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	// Checked under the lock: Close clears data while holding it.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}

	existing, exists := s.data[key]
	if opts.IfNoneMatch && exists {
		return nil, ErrPreconditionFailed
	}
	if opts.IfMatch != "" && (!exists || etagOf(existing.revision) != opts.IfMatch) {
		return nil, ErrPreconditionFailed
	}

	s.revision++
	val := make([]byte, len(value))
	copy(val, value)

	e := &entry{
		value:    val,
		revision: s.revision,
		modified: s.now(),
	}
	s.data[key] = e

	return &Object{
		Key:      key,
		Value:    value,
		ETag:     etagOf(e.revision),
		Modified: e.modified,
	}, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

func etagOf(revision uint64) string {
	return strconv.FormatUint(revision, 10)
}
