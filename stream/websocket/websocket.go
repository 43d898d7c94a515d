// Package websocket is the gorilla/websocket transport for stream.Manager.
package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/stream"
)

const (
	defaultReadLimit = 1 << 20
	closeGrace       = time.Second
	maxErrorBody     = 1024
)

// Opener dials URL once per handshake. The credential travels as the
// TokenParam query parameter when set, otherwise as a bearer token.
type Opener struct {
	URL        string
	TokenParam string
	Header     http.Header
	Dialer     *websocket.Dialer // nil => proxy from environment
	ReadLimit  int64             // 0 => 1 MiB
}

var _ stream.Opener = (*Opener)(nil)

func (o *Opener) OpenStream(ctx context.Context, credential string) (stream.Conn, tradesync.RawResult) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return nil, tradesync.RawResult{Err: err}
	}
	hdr := http.Header{}
	for k, vs := range o.Header {
		hdr[k] = append([]string(nil), vs...)
	}
	if credential != "" {
		if o.TokenParam != "" {
			q := u.Query()
			q.Set(o.TokenParam, credential)
			u.RawQuery = q.Encode()
		} else {
			hdr.Set("Authorization", "Bearer "+credential)
		}
	}

	d := o.Dialer
	if d == nil {
		d = &websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	}
	c, resp, err := d.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, tradesync.RawResult{Status: resp.StatusCode, Body: body}
		}
		return nil, tradesync.RawResult{Err: err}
	}

	limit := o.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)
	return &Conn{c: c}, tradesync.RawResult{Status: resp.StatusCode}
}

// Conn adapts *websocket.Conn to stream.Conn. A normal close from the server
// reads as io.EOF.
type Conn struct {
	c    *websocket.Conn
	once sync.Once
}

func (c *Conn) Recv() ([]byte, error) {
	_, b, err := c.c.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return b, nil
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = c.c.Close()
	})
	return err
}
