// Package genstore keeps the generation counters that make cache writes
// conditional. A repository snapshots the generation of a key before calling
// the remote API and persists the result only if nobody bumped it meanwhile
// (an Invalidate or an optimistic Write).
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys in one round-trip; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes counters untouched for longer than retention (no-op for Redis).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
