package stream

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/unkn0wn-root/tradesync"
)

const (
	DefaultOpenFailureDelay = 60 * time.Second
	DefaultCompletionDelay  = 15 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultHeartbeat        = "heartbeat"
)

// Options configure a Manager. Only Opener is required.
type Options struct {
	Opener Opener

	Logger tradesync.Logger // nil => tradesync.NopLogger
	Hooks  Hooks            // nil => NopHooks

	OpenFailureDelay time.Duration // wait after a failed handshake; 0 => 60s
	CompletionDelay  time.Duration // wait after a graceful end of stream; 0 => 15s
	HandshakeTimeout time.Duration // bound on one OpenStream call; 0 => 30s

	// Heartbeat is the decoded payload that signals liveness. It is never
	// delivered. "" => "heartbeat".
	Heartbeat string
	// Decode turns a raw frame into a payload. Errors drop the frame.
	// nil => UTF-8 text with surrounding whitespace trimmed.
	Decode func([]byte) (string, error)

	// ReconnectOnError makes a terminal read error reconnect after
	// OpenFailureDelay instead of leaving the manager Disconnected.
	ReconnectOnError bool

	// OnStateChange and Hooks.StateChange see changes one at a time in the
	// order they happened, possibly on another goroutine than the one that
	// made the change.
	OnStateChange func(from, to State)
	Now           func() time.Time
}

var errNotUTF8 = errors.New("stream: frame is not valid UTF-8")

func decodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errNotUTF8
	}
	return strings.TrimSpace(string(b)), nil
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = tradesync.NopLogger{}
	}
	if o.Hooks == nil {
		o.Hooks = NopHooks{}
	}
	if o.OpenFailureDelay <= 0 {
		o.OpenFailureDelay = DefaultOpenFailureDelay
	}
	if o.CompletionDelay <= 0 {
		o.CompletionDelay = DefaultCompletionDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.Heartbeat == "" {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.Decode == nil {
		o.Decode = decodeText
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
