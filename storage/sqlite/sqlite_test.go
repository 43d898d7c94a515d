package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/unkn0wn-root/tradesync/storage"
	"github.com/unkn0wn-root/tradesync/storage/storagetest"
)

func open(t *testing.T, path string, now func() time.Time) *Adapter {
	t.Helper()
	a, err := Open(context.Background(), Config{Path: path, Now: now})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return open(t, filepath.Join(t.TempDir(), "cache.db"), nil)
	})
}

func TestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	a, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _ = a.Write(ctx, "entry:positions:x", []byte("payload"), 0)
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	b := open(t, path, nil)
	v, ok, err := b.Read(ctx, "entry:positions:x")
	if err != nil || !ok || string(v) != "payload" {
		t.Fatalf("after reopen = %q,%v,%v", v, ok, err)
	}
}

func TestTTLModtimeAndPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	a := open(t, filepath.Join(t.TempDir(), "cache.db"), func() time.Time { return now })

	_, _ = a.Write(ctx, "short", []byte("1"), time.Second)
	_, _ = a.Write(ctx, "long", []byte("2"), 0)
	at, ok, err := a.LastModified(ctx, "short")
	if err != nil || !ok || !at.Equal(now) {
		t.Fatalf("LastModified = %v,%v,%v", at, ok, err)
	}

	now = now.Add(2 * time.Second)
	n, err := a.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge = %d,%v", n, err)
	}
	if _, ok, _ := a.Read(ctx, "long"); !ok {
		t.Fatalf("entry without ttl purged")
	}
}

func TestDeletePrefixEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	a := open(t, filepath.Join(t.TempDir(), "cache.db"), nil)
	_, _ = a.Write(ctx, "entry:a_b:1", []byte("1"), 0)
	_, _ = a.Write(ctx, "entry:aXb:1", []byte("2"), 0)

	if err := a.DeletePrefix(ctx, "entry:a_b:"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if _, ok, _ := a.Read(ctx, "entry:aXb:1"); !ok {
		t.Fatalf("'_' matched as a wildcard")
	}
}

func TestGenerationsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	a, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	g := a.Generations()
	for i := 0; i < 3; i++ {
		if _, err := g.Bump(ctx, "entry:orders:a"); err != nil {
			t.Fatalf("Bump: %v", err)
		}
	}
	if n, err := g.Bump(ctx, "epoch:orders"); err != nil || n != 1 {
		t.Fatalf("first Bump = %d,%v", n, err)
	}
	_ = a.Close(ctx)

	b := open(t, path, nil)
	m, err := b.Generations().SnapshotMany(ctx, []string{"entry:orders:a", "epoch:orders", "entry:orders:b"})
	if err != nil {
		t.Fatalf("SnapshotMany: %v", err)
	}
	if m["entry:orders:a"] != 3 || m["epoch:orders"] != 1 || m["entry:orders:b"] != 0 || len(m) != 3 {
		t.Fatalf("gens after reopen = %v", m)
	}
	if n, _ := b.Generations().Snapshot(ctx, "entry:orders:a"); n != 3 {
		t.Fatalf("Snapshot = %d", n)
	}
	if err := b.DeletePrefix(ctx, "entry:"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if n, _ := b.Generations().Snapshot(ctx, "entry:orders:a"); n != 3 {
		t.Fatalf("entry delete touched generations: %d", n)
	}
}
