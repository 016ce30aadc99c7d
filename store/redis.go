package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vinayprograms/agentcollab/errors"
)

// RedisStore implements ObjectStore on Redis. Each object is a hash holding
// its content, revision and modification time; a sorted set scored by
// revision indexes the container in write order.
type RedisStore struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// RedisStoreConfig holds Redis store configuration.
type RedisStoreConfig struct {
	// URL is a redis:// connection URL. Ignored when Client is set.
	URL string

	// Client overrides the connection built from URL.
	Client *redis.Client

	// Prefix namespaces every key of the container.
	// Default: "agentcollab:"
	Prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	client := cfg.Client
	if client == nil {
		if cfg.URL == "" {
			return nil, fmt.Errorf("redis url required")
		}
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opts)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "agentcollab:"
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, redisError(err, "ping")
	}

	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) objectKey(key string) string {
	return s.prefix + "obj:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) revisionKey() string {
	return s.prefix + "rev"
}

func (s *RedisStore) containerKey() string {
	return s.prefix + "container"
}

// EnsureContainer records the container marker.
func (s *RedisStore) EnsureContainer(ctx context.Context) (Ensured, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	created, err := s.client.SetNX(ctx, s.containerKey(), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return 0, redisError(err, "create container")
	}
	if created {
		return Created, nil
	}
	return AlreadyExists, nil
}

// List pages through the index newest first.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) (*Page, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	offset, err := parseOffsetCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := normalizeLimit(opts.Limit)

	// One extra member tells whether another page follows.
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), int64(offset), int64(offset+limit)).Result()
	if err != nil {
		return nil, redisError(err, "list index")
	}

	page := &Page{}
	if len(keys) > limit {
		keys = keys[:limit]
		page.Next = offsetCursor(offset + limit)
	}
	if len(keys) == 0 {
		return page, nil
	}

	meta := make([]*redis.SliceCmd, len(keys))
	sizes := make([]*redis.Cmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			meta[i] = p.HMGet(ctx, s.objectKey(key), "rev", "mod")
			sizes[i] = p.Do(ctx, "HSTRLEN", s.objectKey(key), "data")
		}
		return nil
	})
	if err != nil {
		return nil, redisError(err, "list metadata")
	}

	for i, key := range keys {
		size, _ := sizes[i].Int64()
		vals := meta[i].Val()
		rev, _ := vals[0].(string)
		mod, _ := vals[1].(string)
		page.Entries = append(page.Entries, Entry{
			Key:      key,
			ETag:     rev,
			Modified: parseNanos(mod),
			Size:     size,
			Handle:   key,
		})
	}
	return page, nil
}

// Fetch reads a listed entry.
func (s *RedisStore) Fetch(ctx context.Context, e Entry) (*Object, error) {
	return s.Get(ctx, e.Key)
}

// Get reads an object hash.
func (s *RedisStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	fields, err := s.client.HGetAll(ctx, s.objectKey(key)).Result()
	if err != nil {
		return nil, redisError(err, "get "+key)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return &Object{
		Key:      key,
		Value:    []byte(fields["data"]),
		ETag:     fields["rev"],
		Modified: parseNanos(fields["mod"]),
	}, nil
}

// Put writes an object. Conditional writes run under WATCH so a concurrent
// write between the check and the commit aborts this one.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	objKey := s.objectKey(key)
	now := time.Now().UTC()
	var rev int64

	write := func(p redis.Pipeliner) error {
		p.HSet(ctx, objKey, "data", value, "rev", rev, "mod", now.UnixNano())
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rev), Member: key})
		return nil
	}

	if !opts.IfNoneMatch && opts.IfMatch == "" {
		var err error
		if rev, err = s.client.Incr(ctx, s.revisionKey()).Result(); err != nil {
			return nil, redisError(err, "put "+key)
		}
		if _, err := s.client.TxPipelined(ctx, write); err != nil {
			return nil, redisError(err, "put "+key)
		}
		return &Object{Key: key, Value: value, ETag: strconv.FormatInt(rev, 10), Modified: now}, nil
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, objKey, "rev").Result()
		exists := err == nil
		if err != nil && err != redis.Nil {
			return err
		}
		if opts.IfNoneMatch && exists {
			return ErrPreconditionFailed
		}
		if opts.IfMatch != "" && (!exists || current != opts.IfMatch) {
			return ErrPreconditionFailed
		}

		if rev, err = tx.Incr(ctx, s.revisionKey()).Result(); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, write)
		return err
	}, objKey)

	switch {
	case err == nil:
		return &Object{Key: key, Value: value, ETag: strconv.FormatInt(rev, 10), Modified: now}, nil
	case err == ErrPreconditionFailed, err == redis.TxFailedErr:
		return nil, ErrPreconditionFailed
	default:
		return nil, redisError(err, "put "+key)
	}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func redisError(err error, op string) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(err, op)
	}
	return errors.Store(0, fmt.Sprintf("%s: %v", op, err), errors.WithCause(err))
}
