package tradesync

import (
	"time"
)

// Kind tags the active variant of an Outcome.
type Kind uint8

const (
	KindSuccess Kind = iota
	KindEmpty
	KindClientError
	KindServerError
	KindNetworkFailure
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindNetworkFailure:
		return "network_failure"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Class groups failure kinds by how callers should react to them.
type Class uint8

const (
	ClassNone      Class = iota // success or empty
	ClassTransient              // server/network; retryable
	ClassPermanent              // client errors; not retried
	ClassMalformed              // decode failure on an otherwise good response
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Reasons attached to client errors that callers branch on.
const (
	ReasonNotFound   = "not-found"
	ReasonBadRequest = "bad-request"
)

// Outcome is the result of a remote operation. Exactly one Kind is active;
// Value is meaningful only for KindSuccess.
type Outcome[T any] struct {
	Kind    Kind
	Value   T
	Code    int    // transport status, 0 when no response was received
	Reason  string // machine-readable detail, e.g. ReasonNotFound
	Message string

	// Stale marks a cached value served because the remote call failed.
	Stale     bool
	FetchedAt time.Time
}

func Success[T any](v T) Outcome[T] { return Outcome[T]{Kind: KindSuccess, Value: v} }

func Empty[T any](code int) Outcome[T] { return Outcome[T]{Kind: KindEmpty, Code: code} }

func ClientError[T any](code int, reason, msg string) Outcome[T] {
	return Outcome[T]{Kind: KindClientError, Code: code, Reason: reason, Message: msg}
}

func ServerError[T any](code int, msg string) Outcome[T] {
	return Outcome[T]{Kind: KindServerError, Code: code, Message: msg}
}

func NetworkFailure[T any](msg string) Outcome[T] {
	return Outcome[T]{Kind: KindNetworkFailure, Message: msg}
}

func Malformed[T any](code int, msg string) Outcome[T] {
	return Outcome[T]{Kind: KindMalformed, Code: code, Message: msg}
}

// OK reports whether the remote side answered successfully (with or without a body).
func (o Outcome[T]) OK() bool { return o.Kind == KindSuccess || o.Kind == KindEmpty }

func (o Outcome[T]) IsNotFound() bool {
	return o.Kind == KindClientError && o.Reason == ReasonNotFound
}

func (o Outcome[T]) Class() Class {
	switch o.Kind {
	case KindSuccess, KindEmpty:
		return ClassNone
	case KindServerError, KindNetworkFailure:
		return ClassTransient
	case KindClientError:
		return ClassPermanent
	case KindMalformed:
		return ClassMalformed
	default:
		return ClassTransient
	}
}

// Retryable reports whether repeating the same call may succeed.
func (o Outcome[T]) Retryable() bool { return o.Class() == ClassTransient }

// Err converts a failed outcome into an *OutcomeError; nil when OK.
func (o Outcome[T]) Err() error {
	if o.OK() {
		return nil
	}
	return &OutcomeError{Kind: o.Kind, Code: o.Code, Reason: o.Reason, Message: o.Message}
}
