package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestMemoryStore_EnsureContainer(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	got, err := s.EnsureContainer(ctx)
	if err != nil {
		t.Fatalf("EnsureContainer failed: %v", err)
	}
	if got != Created {
		t.Errorf("expected Created, got %s", got)
	}

	got, err = s.EnsureContainer(ctx)
	if err != nil {
		t.Fatalf("EnsureContainer failed: %v", err)
	}
	if got != AlreadyExists {
		t.Errorf("expected AlreadyExists, got %s", got)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(context.Background(), "nonexistent.json")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	written, err := s.Put(ctx, "msg-1.json", []byte("v1"), PutOptions{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if written.ETag == "" {
		t.Error("expected an etag after Put")
	}

	got, err := s.Get(ctx, "msg-1.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Value) != "v1" {
		t.Errorf("expected v1, got %s", got.Value)
	}
	if got.ETag != written.ETag {
		t.Errorf("etag mismatch: %s vs %s", got.ETag, written.ETag)
	}

	// Returned values are copies.
	got.Value[0] = 'X'
	again, _ := s.Get(ctx, "msg-1.json")
	if string(again.Value) != "v1" {
		t.Error("mutating a read value must not change the store")
	}
}

func TestMemoryStore_IfMatch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	first, _ := s.Put(ctx, "k.json", []byte("a"), PutOptions{})

	second, err := s.Put(ctx, "k.json", []byte("b"), PutOptions{IfMatch: first.ETag})
	if err != nil {
		t.Fatalf("conditional Put with current etag failed: %v", err)
	}
	if second.ETag == first.ETag {
		t.Error("etag must change on every write")
	}

	_, err = s.Put(ctx, "k.json", []byte("c"), PutOptions{IfMatch: first.ETag})
	if err != ErrPreconditionFailed {
		t.Errorf("expected ErrPreconditionFailed for stale etag, got %v", err)
	}

	_, err = s.Put(ctx, "missing.json", []byte("c"), PutOptions{IfMatch: "1"})
	if err != ErrPreconditionFailed {
		t.Errorf("expected ErrPreconditionFailed for missing key, got %v", err)
	}
}

func TestMemoryStore_IfNoneMatch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Put(ctx, "k.json", []byte("a"), PutOptions{IfNoneMatch: true}); err != nil {
		t.Fatalf("create-only Put failed: %v", err)
	}
	if _, err := s.Put(ctx, "k.json", []byte("b"), PutOptions{IfNoneMatch: true}); err != ErrPreconditionFailed {
		t.Errorf("expected ErrPreconditionFailed, got %v", err)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(fixedClock(start, time.Second)))
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"a.json", "b.json", "c.json"} {
		if _, err := s.Put(ctx, key, []byte(key), PutOptions{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	// Rewriting moves a to the front.
	s.Put(ctx, "a.json", []byte("a2"), PutOptions{})

	page, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"a.json", "c.json", "b.json"}
	if len(page.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(page.Entries))
	}
	for i, key := range want {
		if page.Entries[i].Key != key {
			t.Errorf("entry %d: expected %s, got %s", i, key, page.Entries[i].Key)
		}
	}
	if page.Next != "" {
		t.Errorf("expected no next cursor, got %q", page.Next)
	}
}

func TestMemoryStore_ListSameInstantUsesWriteOrder(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return frozen }))
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "first.json", nil, PutOptions{})
	s.Put(ctx, "second.json", nil, PutOptions{})

	page, _ := s.List(ctx, ListOptions{})
	if page.Entries[0].Key != "second.json" {
		t.Errorf("expected latest write first, got %s", page.Entries[0].Key)
	}
}

func TestMemoryStore_ListPaging(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(fixedClock(start, time.Millisecond)))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := string(rune('a'+i)) + ".json"
		s.Put(ctx, key, []byte(key), PutOptions{})
	}

	var keys []string
	cursor := ""
	pages := 0
	for {
		page, err := s.List(ctx, ListOptions{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		pages++
		for _, e := range page.Entries {
			keys = append(keys, e.Key)
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	if len(keys) != 5 || keys[0] != "e.json" || keys[4] != "a.json" {
		t.Errorf("unexpected listing %v", keys)
	}

	if _, err := s.List(ctx, ListOptions{Cursor: "bogus"}); err != ErrInvalidCursor {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestMemoryStore_Fetch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "k.json", []byte("body"), PutOptions{})
	page, _ := s.List(ctx, ListOptions{})

	obj, err := s.Fetch(ctx, page.Entries[0])
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(obj.Value) != "body" {
		t.Errorf("expected body, got %s", obj.Value)
	}
}

func TestMemoryStore_InvalidKey(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"", "a/b.json", ".hidden", "a b.json", "x:y"} {
		if _, err := s.Put(ctx, key, nil, PutOptions{}); err != ErrInvalidKey {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Close()

	if _, err := s.Get(ctx, "k.json"); err != ErrClosed {
		t.Errorf("Get: expected ErrClosed, got %v", err)
	}
	if _, err := s.Put(ctx, "k.json", nil, PutOptions{}); err != ErrClosed {
		t.Errorf("Put: expected ErrClosed, got %v", err)
	}
	if _, err := s.List(ctx, ListOptions{}); err != ErrClosed {
		t.Errorf("List: expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestMemoryStore_WritesRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewMemoryStore()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if _, err := s.Put(ctx, "k.json", []byte("x"), PutOptions{}); err != nil && err != ErrClosed {
						t.Errorf("Put: expected nil or ErrClosed, got %v", err)
						return
					}
					if _, err := s.List(ctx, ListOptions{}); err != nil && err != ErrClosed {
						t.Errorf("List: expected nil or ErrClosed, got %v", err)
						return
					}
				}
			}()
		}
		s.Close()
		wg.Wait()

		if _, err := s.Put(ctx, "k.json", []byte("x"), PutOptions{}); err != ErrClosed {
			t.Fatalf("Put after Close: expected ErrClosed, got %v", err)
		}
	}
}

func TestMemoryStore_ConcurrentConditionalWrites(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	base, _ := s.Put(ctx, "k.json", []byte("0"), PutOptions{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, "k.json", []byte("x"), PutOptions{IfMatch: base.ETag}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one conditional write to win, got %d", wins.Load())
	}
}
