package store

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(zap.NewNop(), time.Hour)
	t.Cleanup(s.Stop)
	return s
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil || got != "v1" {
		t.Errorf("Get = (%q, %v), want (v1, nil)", got, err)
	}

	if _, err := s.Get(ctx, "missing"); err != core.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k1", "v1", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k1"); err != nil {
		t.Fatalf("entry expired too early: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "k1"); err != core.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound after TTL", err)
	}
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Increment(ctx, "counter", 2)
	if err != nil || v != 2 {
		t.Fatalf("Increment = (%d, %v), want (2, nil)", v, err)
	}
	v, err = s.Increment(ctx, "counter", 3)
	if err != nil || v != 5 {
		t.Fatalf("Increment = (%d, %v), want (5, nil)", v, err)
	}

	s.Set(ctx, "text", "hello", 0)
	if _, err := s.Increment(ctx, "text", 1); err == nil {
		t.Error("expected error incrementing non-integer value")
	}
}

func TestMemoryStoreExpire(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", "v1", 0)
	if err := s.Expire(ctx, "k1", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "k1"); err != core.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound after Expire", err)
	}

	if err := s.Expire(ctx, "missing", time.Minute); err != core.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound for missing key", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", "v1", 0)
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k1"); err != core.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound after Delete", err)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "old", "v", time.Millisecond)
	s.Set(ctx, "keep", "v", time.Hour)
	time.Sleep(5 * time.Millisecond)

	if err := s.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}

	s.mu.RLock()
	_, oldThere := s.entries["old"]
	_, keepThere := s.entries["keep"]
	s.mu.RUnlock()
	if oldThere {
		t.Error("expired entry survived cleanup")
	}
	if !keepThere {
		t.Error("live entry removed by cleanup")
	}
}
