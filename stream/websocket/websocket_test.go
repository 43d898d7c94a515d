package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/stream"
)

func newServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" && r.URL.Query().Get("token") != "secret" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// wait for the client's close reply
		_, _, _ = c.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestOpenerReadsUntilNormalClose(t *testing.T) {
	srv := newServer(t, "heartbeat", `{"order":1}`)
	o := &Opener{URL: wsURL(srv)}

	conn, raw := o.OpenStream(context.Background(), "secret")
	out := tradesync.Classify(raw, tradesync.Handlers[[]byte]{})
	if !out.OK() || conn == nil {
		t.Fatalf("handshake = %+v", out)
	}
	defer conn.Close()

	for _, want := range []string{"heartbeat", `{"order":1}`} {
		b, err := conn.Recv()
		if err != nil || string(b) != want {
			t.Fatalf("Recv = %q, %v; want %q", b, err, want)
		}
	}
	if _, err := conn.Recv(); err != io.EOF {
		t.Fatalf("normal close = %v, want io.EOF", err)
	}
}

func TestOpenerTokenParam(t *testing.T) {
	srv := newServer(t)
	o := &Opener{URL: wsURL(srv), TokenParam: "token"}
	conn, raw := o.OpenStream(context.Background(), "secret")
	if conn == nil || raw.Status != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d err=%v", raw.Status, raw.Err)
	}
	_ = conn.Close()
}

func TestOpenerRejectedHandshake(t *testing.T) {
	srv := newServer(t)
	o := &Opener{URL: wsURL(srv)}

	conn, raw := o.OpenStream(context.Background(), "wrong")
	if conn != nil {
		t.Fatalf("conn returned for rejected handshake")
	}
	out := tradesync.Classify(raw, tradesync.Handlers[[]byte]{})
	if out.Kind != tradesync.KindClientError || out.Code != http.StatusUnauthorized {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Message, "bad token") {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestOpenerUnreachable(t *testing.T) {
	srv := newServer(t)
	u := wsURL(srv)
	srv.Close()

	_, raw := (&Opener{URL: u}).OpenStream(context.Background(), "secret")
	if out := tradesync.Classify(raw, tradesync.Handlers[[]byte]{}); out.Kind != tradesync.KindNetworkFailure {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestManagerOverWebsocket(t *testing.T) {
	srv := newServer(t, "heartbeat", "fill:1", "heartbeat", "fill:2")
	m, err := stream.New(stream.Options{
		Opener:          &Opener{URL: wsURL(srv)},
		CompletionDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	got := make(chan string, 10)
	m.Subscribe(func(ev stream.Event) { got <- ev.Payload }, nil, nil)
	if err := m.Open("secret"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, want := range []string{"fill:1", "fill:2"} {
		select {
		case p := <-got:
			if p != want {
				t.Fatalf("payload = %q, want %q", p, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for m.State() != stream.Backoff {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v after normal close, want backoff", m.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
