package tradesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/unkn0wn-root/tradesync/codec"
)

// RawResult is what a transport observed for one request.
// Err != nil means no usable response arrived (Status/Body are ignored).
type RawResult struct {
	Status int
	Body   []byte
	Err    error
}

// TimedOut reports whether Err is a deadline or network timeout.
func (r RawResult) TimedOut() bool {
	if r.Err == nil {
		return false
	}
	if errors.Is(r.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(r.Err, &ne) && ne.Timeout()
}

// Rewrite receives the default classification and returns the final one.
type Rewrite[T any] func(Outcome[T]) Outcome[T]

// Handlers override classification per outcome category.
// Nil fields fall through to the next, less specific, handler and finally
// to the default conversion.
type Handlers[T any] struct {
	// OnSuccess decodes a 2xx body. An error yields KindMalformed.
	OnSuccess func(body []byte) (T, error)

	OnEmpty          Rewrite[T]
	OnNotFound       Rewrite[T]
	OnBadRequest     Rewrite[T]
	OnClientError    Rewrite[T]
	OnServerError    Rewrite[T]
	OnNetworkFailure Rewrite[T]
	OnMalformed      Rewrite[T]

	// OnError handles any failure not claimed above.
	OnError Rewrite[T]
}

// Classify maps a raw transport result into an Outcome. It is pure: no I/O,
// no retries.
func Classify[T any](raw RawResult, h Handlers[T]) Outcome[T] {
	out := classifyDefault(raw, h.OnSuccess)
	if rw := h.pick(out); rw != nil {
		return rw(out)
	}
	return out
}

func classifyDefault[T any](raw RawResult, decode func([]byte) (T, error)) Outcome[T] {
	if raw.Err != nil {
		if raw.TimedOut() {
			return NetworkFailure[T]("timeout: " + raw.Err.Error())
		}
		return NetworkFailure[T](raw.Err.Error())
	}

	st := raw.Status
	switch {
	case st >= 100 && st < 300:
		if len(raw.Body) == 0 {
			return Empty[T](st)
		}
		if decode == nil {
			decode = decodeDefault[T]
		}
		v, err := decode(raw.Body)
		if err != nil {
			return Malformed[T](st, err.Error())
		}
		o := Success(v)
		o.Code = st
		return o
	case st == http.StatusNotFound:
		return ClientError[T](st, ReasonNotFound, bodyMessage(raw.Body, st))
	case st == http.StatusBadRequest:
		return ClientError[T](st, ReasonBadRequest, bodyMessage(raw.Body, st))
	case st >= 300 && st < 500:
		return ClientError[T](st, "", bodyMessage(raw.Body, st))
	case st >= 500 && st < 600:
		return ServerError[T](st, bodyMessage(raw.Body, st))
	default:
		// status 0 or out of range: the transport gave us nothing usable
		return NetworkFailure[T](fmt.Sprintf("unexpected status %d", st))
	}
}

func (h Handlers[T]) pick(o Outcome[T]) Rewrite[T] {
	var specific, category Rewrite[T]
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindEmpty:
		return h.OnEmpty
	case KindClientError:
		switch o.Reason {
		case ReasonNotFound:
			specific = h.OnNotFound
		case ReasonBadRequest:
			specific = h.OnBadRequest
		}
		category = h.OnClientError
	case KindServerError:
		category = h.OnServerError
	case KindNetworkFailure:
		category = h.OnNetworkFailure
	case KindMalformed:
		category = h.OnMalformed
	}
	switch {
	case specific != nil:
		return specific
	case category != nil:
		return category
	default:
		return h.OnError
	}
}

// decodeDefault passes []byte through and JSON-decodes everything else.
func decodeDefault[T any](b []byte) (T, error) {
	if v, ok := any(b).(T); ok {
		return v, nil
	}
	return codec.JSON[T]{}.Decode(b)
}

const maxMessage = 256

func bodyMessage(b []byte, status int) string {
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return http.StatusText(status)
	}
	if len(msg) > maxMessage {
		cut := maxMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
