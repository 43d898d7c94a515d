// Package stream keeps one logical subscription to a remote event stream
// alive. A Manager opens the stream, fans decoded events out to subscribers,
// reconnects after failed handshakes and graceful completions, and stops
// every pending retry on Close.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/unkn0wn-root/tradesync"
)

type Manager struct {
	opts Options
	log  tradesync.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc // cancellation token of the running loop; nil when idle
	conn   Conn
	subs   []*Subscription
	nextID uint64

	// state changes waiting for delivery, in the order they happened
	pending   []stateChange
	notifying bool
}

type stateChange struct{ from, to State }

func New(opts Options) (*Manager, error) {
	if opts.Opener == nil {
		return nil, errors.New("stream: opener is required")
	}
	opts = opts.withDefaults()
	return &Manager{
		opts:  opts,
		log:   tradesync.WithFields(opts.Logger, tradesync.Fields{"component": "stream"}),
		state: Disconnected,
	}, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts the connection loop and returns immediately. It fails with
// ErrAlreadyOpen unless the manager is Disconnected.
func (m *Manager) Open(credential string) error {
	m.mu.Lock()
	if m.state != Disconnected || m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx, credential)
	return nil
}

// Close stops the loop, cancels any scheduled reconnect, closes the live
// connection and completes every subscriber. Safe to call repeatedly.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.cancel == nil && m.state == Disconnected && len(m.subs) == 0 {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	subs := m.subs
	m.subs = nil
	m.setState(Disconnected)
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	m.flushState()
	for _, s := range subs {
		s.complete()
	}
	m.log.Info("stream closed", tradesync.Fields{"subscribers": len(subs)})
	return err
}

func (m *Manager) run(ctx context.Context, credential string) {
	attempt := 0
	for {
		if !m.transition(ctx, Connecting) {
			return
		}
		attempt++
		conn, kind, err := m.handshake(ctx, credential)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.opts.Hooks.OpenFailed(attempt, kind)
			m.log.Warn("stream handshake failed; retrying", tradesync.Fields{
				"attempt": attempt, "delay": m.opts.OpenFailureDelay.String(), "err": err,
			})
			if !m.backoff(ctx, m.opts.OpenFailureDelay) {
				return
			}
			continue
		}
		if !m.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		attempt = 0
		m.log.Info("stream connected", nil)

		err = m.consume(ctx, conn)
		m.detach(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, io.EOF) {
			m.log.Info("stream completed; reconnecting", tradesync.Fields{"delay": m.opts.CompletionDelay.String()})
			if !m.backoff(ctx, m.opts.CompletionDelay) {
				return
			}
			continue
		}

		m.opts.Hooks.StreamTerminated(err)
		m.log.Error("stream terminated", tradesync.Fields{"err": err})
		if m.opts.ReconnectOnError {
			m.broadcastError(ctx, err, false)
			if !m.backoff(ctx, m.opts.OpenFailureDelay) {
				return
			}
			continue
		}
		m.broadcastError(ctx, err, true)
		m.finish(ctx)
		return
	}
}

func (m *Manager) handshake(ctx context.Context, credential string) (Conn, tradesync.Kind, error) {
	hctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	conn, raw := m.opts.Opener.OpenStream(hctx, credential)
	out := tradesync.Classify(raw, tradesync.Handlers[[]byte]{})
	if !out.OK() {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, out.Kind, out.Err()
	}
	if conn == nil {
		return nil, tradesync.KindMalformed, fmt.Errorf("stream: handshake status %d without a connection", raw.Status)
	}
	return conn, out.Kind, nil
}

// consume reads until the connection fails or ends. Malformed frames and
// heartbeats are dropped; everything else is broadcast in arrival order.
func (m *Manager) consume(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.Recv()
		if err != nil {
			return err
		}
		payload, err := m.opts.Decode(frame)
		if err != nil {
			m.opts.Hooks.EventDropped("malformed")
			m.log.Warn("dropping malformed stream frame", tradesync.Fields{"err": err, "size": len(frame)})
			continue
		}
		if payload == m.opts.Heartbeat {
			m.opts.Hooks.EventDropped("heartbeat")
			continue
		}
		m.broadcast(ctx, Event{Payload: payload, ReceivedAt: m.opts.Now()})
	}
}

func (m *Manager) broadcast(ctx context.Context, ev Event) {
	subs := m.snapshot(ctx)
	n := 0
	for _, s := range subs {
		if s.deliver(ev) {
			n++
		}
	}
	m.opts.Hooks.EventDelivered(n)
}

// broadcastError delivers err once to every subscriber; remove ends their
// subscription as well.
func (m *Manager) broadcastError(ctx context.Context, err error, remove bool) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	subs := append([]*Subscription(nil), m.subs...)
	if remove {
		m.subs = nil
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.fail(err, remove)
	}
}

func (m *Manager) snapshot(ctx context.Context) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	return append([]*Subscription(nil), m.subs...)
}

// transition moves to state `to` unless the loop owning ctx was cancelled.
func (m *Manager) transition(ctx context.Context, to State) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.setState(to)
	m.mu.Unlock()
	m.flushState()
	return true
}

func (m *Manager) attach(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.setState(Connected)
	m.mu.Unlock()
	m.flushState()
	return true
}

func (m *Manager) detach(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

// finish returns the manager to Disconnected after a terminal error so Open
// may be called again.
func (m *Manager) finish(ctx context.Context) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.cancel = nil
	m.setState(Disconnected)
	m.mu.Unlock()
	m.flushState()
}

// backoff enters Backoff and waits d. It returns false when the wait was
// cancelled by Close.
func (m *Manager) backoff(ctx context.Context, d time.Duration) bool {
	if !m.transition(ctx, Backoff) {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// setState records a change for flushState. Callers hold m.mu.
func (m *Manager) setState(to State) {
	if m.state == to {
		return
	}
	m.pending = append(m.pending, stateChange{from: m.state, to: to})
	m.state = to
}

// flushState delivers queued changes in the order setState saw them. One
// goroutine delivers at a time; a caller arriving meanwhile leaves its
// changes to that goroutine.
func (m *Manager) flushState() {
	m.mu.Lock()
	if m.notifying {
		m.mu.Unlock()
		return
	}
	m.notifying = true
	for len(m.pending) > 0 {
		c := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		m.opts.Hooks.StateChange(c.from, c.to)
		if m.opts.OnStateChange != nil {
			m.opts.OnStateChange(c.from, c.to)
		}

		m.mu.Lock()
	}
	m.notifying = false
	m.mu.Unlock()
}
