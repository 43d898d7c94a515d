package ristretto

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/tradesync/storage"
	"github.com/unkn0wn-root/tradesync/storage/storagetest"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{NumCounters: 10_000, MaxCost: 1 << 20, BufferItems: 64, Metrics: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter { return newAdapter(t) })
}

func TestPrefixUnsupported(t *testing.T) {
	a := newAdapter(t)
	if err := a.DeletePrefix(context.Background(), "entry:"); !errors.Is(err, storage.ErrPrefixUnsupported) {
		t.Fatalf("DeletePrefix = %v", err)
	}
	if a.Metrics() == nil {
		t.Fatalf("metrics not enabled")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
