package memory

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/tradesync/storage"
	"github.com/unkn0wn-root/tradesync/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Adapter { return New() })
}

func TestTTLAndModtime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewWithClock(func() time.Time { return now })

	_, _ = a.Write(ctx, "k", []byte("v"), time.Minute)
	at, ok, err := a.LastModified(ctx, "k")
	if err != nil || !ok || !at.Equal(now) {
		t.Fatalf("LastModified = %v,%v,%v", at, ok, err)
	}

	now = now.Add(time.Minute - time.Nanosecond)
	if _, ok, _ := a.Read(ctx, "k"); !ok {
		t.Fatalf("expired early")
	}
	now = now.Add(time.Nanosecond)
	if _, ok, _ := a.Read(ctx, "k"); ok {
		t.Fatalf("served after ttl")
	}
	if a.Len() != 0 {
		t.Fatalf("expired entry kept: %d", a.Len())
	}
}

func TestWriteCopiesValue(t *testing.T) {
	ctx := context.Background()
	a := New()
	buf := []byte("abc")
	_, _ = a.Write(ctx, "k", buf, 0)
	buf[0] = 'X'
	if b, _, _ := a.Read(ctx, "k"); string(b) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", b)
	}
}
