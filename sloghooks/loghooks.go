// Package sloghooks logs repository and stream hook events through slog,
// with sampling for the noisy ones and redacted storage keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/stream"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	StaleEvery    uint64
	DropEvery     uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

// Aliases give the two embedded no-op hook sets distinct field names.
type (
	repoNop   = tradesync.NopHooks
	streamNop = stream.NopHooks
)

// Hooks implements both tradesync.Hooks and stream.Hooks. Hits, misses and
// deliveries are too frequent to log and are left to the metrics package.
type Hooks struct {
	repoNop
	streamNop

	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	staleCtr    atomic.Uint64
	dropCtr     atomic.Uint64
}

var (
	_ tradesync.Hooks = (*Hooks)(nil)
	_ stream.Hooks    = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RemoteFetch(ns string, kind tradesync.Kind, took time.Duration) {
	if h.l == nil || kind == tradesync.KindSuccess || kind == tradesync.KindEmpty {
		return
	}
	h.l.Warn("tradesync.remote_failed",
		"ns", ns,
		"kind", kind.String(),
		"took", took)
}

func (h *Hooks) StaleServed(ns string, cause tradesync.Kind) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Info("tradesync.stale_served",
		"ns", ns,
		"cause", cause.String())
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tradesync.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StorageError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tradesync.storage_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) WriteSkipped(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("tradesync.write_skipped",
		"key", h.redact(storageKey))
}

func (h *Hooks) WriteRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tradesync.write_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenStoreError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tradesync.genstore_error",
		"op", op,
		"err", err)
}

func (h *Hooks) InvalidateOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("tradesync.invalidate_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) StateChange(from, to stream.State) {
	if h.l == nil {
		return
	}
	h.l.Info("tradesync.stream_state",
		"from", from.String(),
		"to", to.String())
}

func (h *Hooks) OpenFailed(attempt int, kind tradesync.Kind) {
	if h.l == nil {
		return
	}
	h.l.Warn("tradesync.stream_open_failed",
		"attempt", attempt,
		"kind", kind.String())
}

func (h *Hooks) EventDropped(reason string) {
	if h.l == nil || reason == "heartbeat" || !sample(h.opts.DropEvery, &h.dropCtr) {
		return
	}
	h.l.Warn("tradesync.stream_event_dropped",
		"reason", reason)
}

func (h *Hooks) StreamTerminated(err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tradesync.stream_terminated",
		"err", err)
}
