package stream

import (
	"errors"
	"testing"
	"time"
)

func TestChanSubscriptionBuffersAndCloses(t *testing.T) {
	conn := newFakeConn()
	hk := &countingHooks{}
	m := newTestManager(t, &scriptOpener{script: serve(conn)}, func(o *Options) { o.Hooks = hk })
	cs := m.SubscribeChan()
	_ = m.Open("token")

	// nobody reads yet; the stream must not stall
	for _, p := range []string{"a", "b", "c"} {
		conn.send(t, p)
	}
	waitFor(t, "broadcast", func() bool { return hk.delivered.Load() == 3 })
	_ = m.Close()

	var got []string
	for ev := range cs.Events() {
		got = append(got, ev.Payload)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("events = %v", got)
	}
	select {
	case <-cs.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done not closed")
	}
}

func TestChanSubscriptionTerminalError(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(t, &scriptOpener{script: serve(conn)}, nil)
	cs := m.SubscribeChan()
	_ = m.Open("token")

	boom := errors.New("reset")
	conn.sendFrame(t, frame{err: boom})

	select {
	case err := <-cs.Errors():
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no error delivered")
	}
	select {
	case <-cs.Done():
	case <-time.After(time.Second):
		t.Fatalf("subscription not ended by terminal error")
	}
}

func TestChanSubscriptionDispose(t *testing.T) {
	conn := newFakeConn()
	m := newTestManager(t, &scriptOpener{script: serve(conn)}, nil)
	cs := m.SubscribeChan()
	other := make(chan string, 1)
	m.Subscribe(func(ev Event) { other <- ev.Payload }, nil, nil)
	_ = m.Open("token")

	cs.Dispose()
	cs.Dispose()
	if _, ok := <-cs.Events(); ok {
		t.Fatalf("events channel open after Dispose")
	}
	conn.send(t, "x")
	if p := <-other; p != "x" {
		t.Fatalf("other subscriber payload = %q", p)
	}
}
