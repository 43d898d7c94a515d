package stream

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// Subscription is a handle for one subscriber. Events reach it in arrival
// order from the moment it was registered; nothing is replayed.
type Subscription struct {
	id         uint64
	m          *Manager
	onData     func(Event)
	onError    func(error)
	onComplete func()
	onEnd      func() // runs once when the manager ends the subscription

	done atomic.Bool
}

// Subscribe registers callbacks against the current or next connection.
// Nil callbacks are ignored. Callbacks run on the manager's read loop.
func (m *Manager) Subscribe(onData func(Event), onError func(error), onComplete func()) *Subscription {
	s := &Subscription{onData: onData, onError: onError, onComplete: onComplete}
	m.register(s)
	return s
}

func (m *Manager) register(s *Subscription) {
	m.mu.Lock()
	m.nextID++
	s.id = m.nextID
	s.m = m
	m.subs = append(m.subs, s)
	m.mu.Unlock()
}

func (m *Manager) remove(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.subs {
		if x == s {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// Subscribers reports how many subscriptions are registered.
func (m *Manager) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Dispose stops delivery to this subscriber only. Idempotent.
func (s *Subscription) Dispose() {
	if s.done.CompareAndSwap(false, true) {
		s.m.remove(s)
	}
}

func (s *Subscription) Active() bool { return !s.done.Load() }

func (s *Subscription) deliver(ev Event) bool {
	if s.done.Load() {
		return false
	}
	if s.onData != nil {
		s.onData(ev)
	}
	return true
}

func (s *Subscription) fail(err error, final bool) {
	if final {
		if !s.done.CompareAndSwap(false, true) {
			return
		}
	} else if s.done.Load() {
		return
	}
	if s.onError != nil {
		s.onError(err)
	}
	if final && s.onEnd != nil {
		s.onEnd()
	}
}

func (s *Subscription) complete() {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.onComplete != nil {
		s.onComplete()
	}
	if s.onEnd != nil {
		s.onEnd()
	}
}

// ChanSubscription delivers events over a channel. Events queue in an
// unbounded buffer, so a slow reader never stalls the stream or other
// subscribers.
type ChanSubscription struct {
	sub    *Subscription
	events chan Event
	errs   chan error
	done   chan struct{}

	mu     sync.Mutex
	q      deque.Deque[Event]
	ended  bool
	wake   chan struct{}
	stop   chan struct{}
	stopMu sync.Once
}

const errBuffer = 8

// SubscribeChan registers a channel-based subscriber and starts its pump.
func (m *Manager) SubscribeChan() *ChanSubscription {
	cs := &ChanSubscription{
		events: make(chan Event),
		errs:   make(chan error, errBuffer),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	cs.sub = &Subscription{onData: cs.push, onError: cs.pushErr, onEnd: cs.end}
	m.register(cs.sub)
	go cs.pump()
	return cs
}

// Events is closed after the stream ends (Close or terminal error) and the
// buffer is drained, or right after Dispose.
func (cs *ChanSubscription) Events() <-chan Event { return cs.events }

// Errors carries stream errors; it is never closed. Errors are dropped when
// the reader falls errBuffer behind.
func (cs *ChanSubscription) Errors() <-chan error { return cs.errs }

// Done is closed together with Events.
func (cs *ChanSubscription) Done() <-chan struct{} { return cs.done }

func (cs *ChanSubscription) Dispose() {
	cs.sub.Dispose()
	cs.stopMu.Do(func() { close(cs.stop) })
}

func (cs *ChanSubscription) push(ev Event) {
	cs.mu.Lock()
	cs.q.PushBack(ev)
	cs.mu.Unlock()
	cs.signal()
}

func (cs *ChanSubscription) pushErr(err error) {
	select {
	case cs.errs <- err:
	default:
	}
}

func (cs *ChanSubscription) end() {
	cs.mu.Lock()
	cs.ended = true
	cs.mu.Unlock()
	cs.signal()
}

func (cs *ChanSubscription) signal() {
	select {
	case cs.wake <- struct{}{}:
	default:
	}
}

func (cs *ChanSubscription) pump() {
	defer close(cs.done)
	defer close(cs.events)
	for {
		cs.mu.Lock()
		if cs.q.Len() == 0 {
			ended := cs.ended
			cs.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-cs.wake:
				continue
			case <-cs.stop:
				return
			}
		}
		ev := cs.q.PopFront()
		cs.mu.Unlock()

		select {
		case cs.events <- ev:
		case <-cs.stop:
			return
		}
	}
}
