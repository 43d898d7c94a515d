package tradesync

import "time"

// Hooks are lightweight callbacks for high-signal repository events.
// Implementations MUST be cheap and non-blocking; they run on the fetch path.
// Wrap slow sinks with hooks/async.
type Hooks interface {
	// CacheHit: a fresh entry was served without a remote call.
	CacheHit(ns string)
	// CacheMiss: reason ∈ {"absent", "expired", "forced"}.
	CacheMiss(ns, reason string)
	// FetchShared: the caller joined a remote fetch already in flight.
	FetchShared(ns string)
	// RemoteFetch reports the classified result of one remote call.
	RemoteFetch(ns string, kind Kind, took time.Duration)
	// StaleServed: the remote call failed with cause and a cached value was returned.
	StaleServed(ns string, cause Kind)

	// SelfHeal: an unusable entry was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)
	// StorageError: op ∈ {"read", "write", "delete"}. Never surfaced to callers of FetchOrLoad.
	StorageError(op, storageKey string, err error)
	// WriteSkipped: a fetched value was not persisted because the key was
	// invalidated or overwritten while the fetch was in flight.
	WriteSkipped(storageKey string)
	// WriteRejected: the storage engine refused a write under pressure.
	WriteRejected(storageKey string)
	// GenStoreError: op ∈ {"snapshot", "bump"}.
	GenStoreError(op string, err error)
	// InvalidateOutage: both the generation bump and the delete failed.
	InvalidateOutage(key string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string)                         {}
func (NopHooks) CacheMiss(string, string)                {}
func (NopHooks) FetchShared(string)                      {}
func (NopHooks) RemoteFetch(string, Kind, time.Duration) {}
func (NopHooks) StaleServed(string, Kind)                {}
func (NopHooks) SelfHeal(string, string)                 {}
func (NopHooks) StorageError(string, string, error)      {}
func (NopHooks) WriteSkipped(string)                     {}
func (NopHooks) WriteRejected(string)                    {}
func (NopHooks) GenStoreError(string, error)             {}
func (NopHooks) InvalidateOutage(string, error, error)   {}

// JoinHooks fans every event out to each non-nil hs in order.
func JoinHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return NopHooks{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) CacheHit(ns string) {
	for _, h := range m {
		h.CacheHit(ns)
	}
}

func (m multiHooks) CacheMiss(ns, reason string) {
	for _, h := range m {
		h.CacheMiss(ns, reason)
	}
}

func (m multiHooks) FetchShared(ns string) {
	for _, h := range m {
		h.FetchShared(ns)
	}
}

func (m multiHooks) RemoteFetch(ns string, kind Kind, took time.Duration) {
	for _, h := range m {
		h.RemoteFetch(ns, kind, took)
	}
}

func (m multiHooks) StaleServed(ns string, cause Kind) {
	for _, h := range m {
		h.StaleServed(ns, cause)
	}
}

func (m multiHooks) SelfHeal(k, reason string) {
	for _, h := range m {
		h.SelfHeal(k, reason)
	}
}

func (m multiHooks) StorageError(op, k string, err error) {
	for _, h := range m {
		h.StorageError(op, k, err)
	}
}

func (m multiHooks) WriteSkipped(k string) {
	for _, h := range m {
		h.WriteSkipped(k)
	}
}

func (m multiHooks) WriteRejected(k string) {
	for _, h := range m {
		h.WriteRejected(k)
	}
}

func (m multiHooks) GenStoreError(op string, err error) {
	for _, h := range m {
		h.GenStoreError(op, err)
	}
}

func (m multiHooks) InvalidateOutage(k string, be, de error) {
	for _, h := range m {
		h.InvalidateOutage(k, be, de)
	}
}
