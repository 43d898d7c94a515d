package stream

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/tradesync"
)

// State is the connection state of a Manager. Exactly one is active.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Backoff
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

var ErrAlreadyOpen = errors.New("stream: manager already open")

// Event is one decoded, non-heartbeat frame.
type Event struct {
	Payload    string
	ReceivedAt time.Time
}

// Conn is a live underlying stream. Recv blocks until the next frame;
// io.EOF means the server ended the stream normally. Close must unblock a
// pending Recv.
type Conn interface {
	Recv() ([]byte, error)
	Close() error
}

// Opener performs the subscription handshake. The RawResult is classified
// with tradesync.Classify: Success and Empty (e.g. 101 Switching Protocols)
// count as a completed handshake and must come with a non-nil Conn.
type Opener interface {
	OpenStream(ctx context.Context, credential string) (Conn, tradesync.RawResult)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, credential string) (Conn, tradesync.RawResult)

func (f OpenerFunc) OpenStream(ctx context.Context, credential string) (Conn, tradesync.RawResult) {
	return f(ctx, credential)
}

// Hooks observe the manager. They run on the read loop and must not block.
type Hooks interface {
	StateChange(from, to State)
	// OpenFailed reports a failed handshake and the attempt number (1-based,
	// reset by every successful handshake).
	OpenFailed(attempt int, kind tradesync.Kind)
	// EventDropped: reason ∈ {"heartbeat", "malformed"}.
	EventDropped(reason string)
	EventDelivered(subscribers int)
	// StreamTerminated: a non-graceful read error ended the connection.
	StreamTerminated(err error)
}

type NopHooks struct{}

func (NopHooks) StateChange(State, State)       {}
func (NopHooks) OpenFailed(int, tradesync.Kind) {}
func (NopHooks) EventDropped(string)            {}
func (NopHooks) EventDelivered(int)             {}
func (NopHooks) StreamTerminated(error)         {}
