package genstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "entry:orders:b"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SnapshotMany(ctx, []string{"entry:orders:a", "entry:orders:b", "epoch:orders"})
	if err != nil {
		t.Fatal(err)
	}
	if got["entry:orders:a"] != 0 || got["entry:orders:b"] != 2 || got["epoch:orders"] != 0 {
		t.Fatalf("got=%v want a=0,b=2,epoch=0", got)
	}
}

func TestLocalBumpIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	var last uint64
	for i := 0; i < 5; i++ {
		g, err := s.Bump(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if g <= last {
			t.Fatalf("bump %d returned %d after %d", i, g, last)
		}
		last = g
	}
	if snap, _ := s.Snapshot(ctx, "k"); snap != last {
		t.Fatalf("snapshot=%d want %d", snap, last)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := s.Bump(ctx, "recent"); err != nil {
		t.Fatal(err)
	}

	s.Cleanup(time.Hour)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "recent"); g != 1 {
		t.Fatalf("recent gen should survive, got %d", g)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d want 1", s.Len())
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	s := NewLocal(time.Millisecond, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
