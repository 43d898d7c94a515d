// Package storage defines the byte store that backs a repository cache.
//
// Adapters MUST be byte-for-byte transparent: Read returns exactly the bytes
// passed to Write for the same key. The "entry:<namespace>:" keyspace is owned
// by tradesync; foreign values written there are treated as corrupt and deleted.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrPrefixUnsupported is returned by DeletePrefix on engines that cannot
// enumerate keys. Callers fall back to generation-based invalidation.
var ErrPrefixUnsupported = errors.New("storage: prefix delete not supported")

// Adapter is a minimal byte store with TTLs. Implementations must be safe for
// concurrent use.
type Adapter interface {
	// Read returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// IO/remote failures return (nil, false, err).
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write stores value. ttl <= 0 means no expiry.
	// ok=false with a nil error means the engine refused the write under pressure.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Delete removes a key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	Close(ctx context.Context) error
}

// Modtimer is implemented by adapters that track when a key was last written.
type Modtimer interface {
	LastModified(ctx context.Context, key string) (time.Time, bool, error)
}
