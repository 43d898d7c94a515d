// Package asynchook moves hook calls off the fetch and read paths onto a
// bounded worker queue. Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	env, _ := tradesync.NewEnv(tradesync.Env{Storage: store, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/stream"
)

type queue struct {
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

func newQueue(workers, qlen int) *queue {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	q := &queue{q: make(chan func(), qlen)}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer q.wg.Done()
			for f := range q.q {
				f()
			}
		}()
	}
	return q
}

// Close drains queued events and stops the workers. Hooks must not be
// called after Close.
func (q *queue) Close() {
	q.once.Do(func() {
		close(q.q)
		q.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (q *queue) Dropped() uint64 { return q.dropped.Load() }

func (q *queue) try(f func()) {
	select {
	case q.q <- f:
	default:
		q.dropped.Add(1)
	}
}

type Hooks struct {
	*queue
	inner tradesync.Hooks
}

var _ tradesync.Hooks = (*Hooks)(nil)

func New(inner tradesync.Hooks, workers, qlen int) *Hooks {
	return &Hooks{queue: newQueue(workers, qlen), inner: inner}
}

func (h *Hooks) CacheHit(ns string)                      { h.try(func() { h.inner.CacheHit(ns) }) }
func (h *Hooks) CacheMiss(ns, reason string)             { h.try(func() { h.inner.CacheMiss(ns, reason) }) }
func (h *Hooks) FetchShared(ns string)                   { h.try(func() { h.inner.FetchShared(ns) }) }
func (h *Hooks) StaleServed(ns string, c tradesync.Kind) { h.try(func() { h.inner.StaleServed(ns, c) }) }
func (h *Hooks) SelfHeal(k, r string)                    { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) WriteSkipped(k string)                   { h.try(func() { h.inner.WriteSkipped(k) }) }
func (h *Hooks) WriteRejected(k string)                  { h.try(func() { h.inner.WriteRejected(k) }) }
func (h *Hooks) GenStoreError(op string, err error) {
	h.try(func() { h.inner.GenStoreError(op, err) })
}
func (h *Hooks) RemoteFetch(ns string, kind tradesync.Kind, took time.Duration) {
	h.try(func() { h.inner.RemoteFetch(ns, kind, took) })
}
func (h *Hooks) StorageError(op, k string, err error) {
	h.try(func() { h.inner.StorageError(op, k, err) })
}
func (h *Hooks) InvalidateOutage(k string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(k, be, de) })
}

// StreamHooks is the stream.Hooks counterpart of Hooks.
type StreamHooks struct {
	*queue
	inner stream.Hooks
}

var _ stream.Hooks = (*StreamHooks)(nil)

func NewStream(inner stream.Hooks, workers, qlen int) *StreamHooks {
	return &StreamHooks{queue: newQueue(workers, qlen), inner: inner}
}

func (h *StreamHooks) StateChange(from, to stream.State) { h.try(func() { h.inner.StateChange(from, to) }) }
func (h *StreamHooks) EventDropped(reason string)        { h.try(func() { h.inner.EventDropped(reason) }) }
func (h *StreamHooks) EventDelivered(n int)              { h.try(func() { h.inner.EventDelivered(n) }) }
func (h *StreamHooks) StreamTerminated(err error)        { h.try(func() { h.inner.StreamTerminated(err) }) }
func (h *StreamHooks) OpenFailed(attempt int, kind tradesync.Kind) {
	h.try(func() { h.inner.OpenFailed(attempt, kind) })
}
