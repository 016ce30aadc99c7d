package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Common errors.
var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrPreconditionFailed indicates a conditional write was rejected:
	// the etag did not match, or a create-only write found the key taken.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")

	// ErrInvalidKey indicates the key cannot be stored.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidCursor indicates a list cursor this store did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Ensured is the outcome of EnsureContainer. Both values are success.
type Ensured int

const (
	// Created means the container did not exist and was created.
	Created Ensured = iota
	// AlreadyExists means the container was already present.
	AlreadyExists
)

// String returns the outcome name.
func (e Ensured) String() string {
	switch e {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Entry is one listed object. Handle is an opaque, store-specific way to
// download the content without another lookup (a pre-authenticated URL for
// Graph); Fetch understands it.
type Entry struct {
	Key      string
	ETag     string
	Modified time.Time
	Size     int64
	Handle   string
}

// Object is stored content plus the version it was read or written at.
type Object struct {
	Key      string
	Value    []byte
	ETag     string
	Modified time.Time
}

// ListOptions controls a List call.
type ListOptions struct {
	// Limit caps the number of entries in the page. Zero means DefaultListLimit.
	Limit int

	// Cursor continues a previous listing; empty starts from the newest entry.
	Cursor string
}

// DefaultListLimit is the page size used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// Page is one slice of a listing, newest first.
type Page struct {
	Entries []Entry

	// Next is the cursor for the following page, empty at the end.
	Next string
}

// PutOptions makes a write conditional. The zero value writes unconditionally.
type PutOptions struct {
	// IfMatch rejects the write unless the stored etag equals it.
	IfMatch string

	// IfNoneMatch rejects the write if the key already exists.
	IfNoneMatch bool
}

// ObjectStore is a mailbox container.
type ObjectStore interface {
	// EnsureContainer creates the container if needed. It is idempotent:
	// Created and AlreadyExists are both success.
	EnsureContainer(ctx context.Context) (Ensured, error)

	// List returns entries ordered by last-modified time, newest first.
	List(ctx context.Context, opts ListOptions) (*Page, error)

	// Fetch downloads a listed entry.
	// Returns ErrNotFound if it disappeared since listing.
	Fetch(ctx context.Context, e Entry) (*Object, error)

	// Get reads an object by key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Put writes an object, replacing any existing content.
	// Returns ErrPreconditionFailed when opts reject the write.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) (*Object, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateKey checks that a key is a plain object name.
func ValidateKey(key string) error {
	if key == "" || len(key) > 255 {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, "/\\:*?\"<>| ") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Offset cursors are used by stores that sort a full key listing locally.
func offsetCursor(n int) string {
	return strconv.Itoa(n)
}

func parseOffsetCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, ErrInvalidCursor
	}
	return n, nil
}

// pageOf slices sorted entries according to opts.
func pageOf(sorted []Entry, opts ListOptions) (*Page, error) {
	offset, err := parseOffsetCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := normalizeLimit(opts.Limit)

	page := &Page{}
	if offset >= len(sorted) {
		return page, nil
	}
	end := offset + limit
	if end < len(sorted) {
		page.Next = offsetCursor(end)
	} else {
		end = len(sorted)
	}
	page.Entries = append([]Entry(nil), sorted[offset:end]...)
	return page, nil
}
