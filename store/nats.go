package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vinayprograms/agentcollab/errors"
)

// NATSStore implements ObjectStore using a NATS JetStream KV bucket as the
// container. The entry revision is the etag.
type NATSStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	config NATSStoreConfig
	closed atomic.Bool

	kvMu sync.Mutex
	kv   jetstream.KeyValue
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// History is the number of revisions to keep per key.
	// Default: 1
	History int

	// MaxValueSize is the maximum value size in bytes.
	// Default: 1MB
	MaxValueSize int32

	// Timeout bounds every KV call.
	// Default: 5s
	Timeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:       "agent-messages",
		History:      1,
		MaxValueSize: 1024 * 1024, // 1MB
		Timeout:      5 * time.Second,
	}
}

// NewNATSStore creates a store on a JetStream KV bucket. The bucket is
// bound lazily and created by EnsureContainer or the first write.
func NewNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	def := DefaultNATSStoreConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	return &NATSStore{
		conn:   cfg.Conn,
		js:     js,
		config: cfg,
	}, nil
}

// EnsureContainer creates the bucket if it does not exist.
func (s *NATSStore) EnsureContainer(ctx context.Context) (Ensured, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.kvMu.Lock()
	defer s.kvMu.Unlock()

	if s.kv != nil {
		return AlreadyExists, nil
	}
	kv, err := s.js.KeyValue(ctx, s.config.Bucket)
	if err == nil {
		s.kv = kv
		return AlreadyExists, nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return 0, natsError(err, "lookup bucket")
	}

	kv, err = s.createBucket(ctx)
	if err != nil {
		return 0, err
	}
	s.kv = kv
	return Created, nil
}

// bucket returns the bound KV bucket. With create unset a missing bucket
// yields nil and no error.
func (s *NATSStore) bucket(ctx context.Context, create bool) (jetstream.KeyValue, error) {
	s.kvMu.Lock()
	defer s.kvMu.Unlock()

	if s.kv != nil {
		return s.kv, nil
	}
	kv, err := s.js.KeyValue(ctx, s.config.Bucket)
	if err == nil {
		s.kv = kv
		return kv, nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, natsError(err, "lookup bucket")
	}
	if !create {
		return nil, nil
	}
	kv, err = s.createBucket(ctx)
	if err != nil {
		return nil, err
	}
	s.kv = kv
	return kv, nil
}

func (s *NATSStore) createBucket(ctx context.Context) (jetstream.KeyValue, error) {
	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       s.config.Bucket,
		History:      uint8(s.config.History),
		MaxValueSize: s.config.MaxValueSize,
	})
	if err != nil {
		return nil, natsError(err, "create bucket")
	}
	return kv, nil
}

// List reads the latest revision metadata of every key and pages through it
// newest first.
func (s *NATSStore) List(ctx context.Context, opts ListOptions) (*Page, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if _, err := parseOffsetCursor(opts.Cursor); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	kv, err := s.bucket(ctx, false)
	if err != nil {
		return nil, err
	}
	if kv == nil {
		return &Page{}, nil
	}

	watcher, err := kv.WatchAll(ctx, jetstream.MetaOnly(), jetstream.IgnoreDeletes())
	if err != nil {
		return nil, natsError(err, "watch keys")
	}
	defer watcher.Stop()

	var entries []Entry
	revs := make(map[string]uint64)
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "list keys")
		case kve, ok := <-watcher.Updates():
			if !ok || kve == nil {
				// nil marks the end of the initial values.
				sortByRevision(entries, revs)
				return pageOf(entries, opts)
			}
			entries = append(entries, Entry{
				Key:      kve.Key(),
				ETag:     etagOf(kve.Revision()),
				Modified: kve.Created(),
				Handle:   kve.Key(),
			})
			revs[kve.Key()] = kve.Revision()
		}
	}
}

// sortByRevision orders entries newest first. Revisions are monotonic per
// bucket, so they agree with the stored timestamps and break ties.
func sortByRevision(entries []Entry, revs map[string]uint64) {
	sort.Slice(entries, func(i, j int) bool {
		return revs[entries[i].Key] > revs[entries[j].Key]
	})
}

// Fetch reads a listed entry.
func (s *NATSStore) Fetch(ctx context.Context, e Entry) (*Object, error) {
	return s.Get(ctx, e.Key)
}

// Get retrieves the latest revision of a key.
func (s *NATSStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	kv, err := s.bucket(ctx, false)
	if err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, ErrNotFound
	}

	entry, err := kv.Get(ctx, key)
	if err != nil {
		return nil, natsError(err, "get "+key)
	}

	return &Object{
		Key:      entry.Key(),
		Value:    entry.Value(),
		ETag:     etagOf(entry.Revision()),
		Modified: entry.Created(), // NATS KV uses Created for last modified
	}, nil
}

// Put writes a value. IfNoneMatch maps to Create and IfMatch to Update with
// the expected revision.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	kv, err := s.bucket(ctx, true)
	if err != nil {
		return nil, err
	}

	var rev uint64
	switch {
	case opts.IfNoneMatch:
		rev, err = kv.Create(ctx, key, value)
	case opts.IfMatch != "":
		expected, perr := strconv.ParseUint(opts.IfMatch, 10, 64)
		if perr != nil {
			return nil, ErrPreconditionFailed
		}
		rev, err = kv.Update(ctx, key, value, expected)
	default:
		rev, err = kv.Put(ctx, key, value)
	}
	if err != nil {
		return nil, natsError(err, "put "+key)
	}

	return &Object{
		Key:      key,
		Value:    value,
		ETag:     etagOf(rev),
		Modified: time.Now().UTC(),
	}, nil
}

// Close shuts down the store. The connection belongs to the caller.
func (s *NATSStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.kvMu.Lock()
	s.kv = nil
	s.kvMu.Unlock()
	return nil
}

// natsError maps JetStream failures onto store errors.
func natsError(err error, op string) error {
	switch {
	case stderrors.Is(err, jetstream.ErrKeyNotFound), stderrors.Is(err, jetstream.ErrKeyDeleted):
		return ErrNotFound
	case stderrors.Is(err, jetstream.ErrKeyExists):
		return ErrPreconditionFailed
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.Wrap(err, op)
	}
	var apiErr *jetstream.APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
			return ErrPreconditionFailed
		}
		return errors.Store(apiErr.Code, fmt.Sprintf("%s: %s", op, apiErr.Description), errors.WithCause(err))
	}
	return errors.Store(0, fmt.Sprintf("%s: %v", op, err), errors.WithCause(err))
}
