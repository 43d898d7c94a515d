package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/tradesync"
)

type page struct{ Offset, Limit int }

func pageQuery(p page) url.Values {
	return url.Values{"offset": {strconv.Itoa(p.Offset)}, "limit": {strconv.Itoa(p.Limit)}}
}

func TestEndpointFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"offset":%s,"limit":%s}`, r.URL.Query().Get("offset"), r.URL.Query().Get("limit"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/v1/", Token: "tok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ep := Endpoint[page]{Client: c, Path: "orders", Query: pageQuery}

	raw := ep.Fetch(context.Background(), page{Offset: 20, Limit: 10})
	if raw.Err != nil || raw.Status != 200 || string(raw.Body) != `{"offset":20,"limit":10}` {
		t.Fatalf("raw = %d %q %v", raw.Status, raw.Body, raw.Err)
	}

	missing := Endpoint[page]{Client: c, Path: "nope"}.Fetch(context.Background(), page{})
	if out := tradesync.Classify(missing, tradesync.Handlers[[]byte]{}); !out.IsNotFound() {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRequestID(t *testing.T) {
	ids := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	c.Get(context.Background(), "a", nil)
	c.Get(context.Background(), "a", nil)
	first, second := <-ids, <-ids
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("request id %q: %v", first, err)
	}
	if first == second {
		t.Fatalf("request id reused: %s", first)
	}

	fixed, _ := New(Config{BaseURL: srv.URL, Header: http.Header{RequestIDHeader: {"trace-1"}}})
	fixed.Get(context.Background(), "a", nil)
	if got := <-ids; got != "trace-1" {
		t.Fatalf("caller id overwritten: %q", got)
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	raw := c.Get(context.Background(), "/slow", nil)
	if !raw.TimedOut() {
		t.Fatalf("TimedOut = false, err = %v", raw.Err)
	}
	if out := tradesync.Classify(raw, tradesync.Handlers[[]byte]{}); out.Kind != tradesync.KindNetworkFailure {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestClientBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, MaxBody: 10})
	if raw := c.Get(context.Background(), "/", nil); raw.Err == nil {
		t.Fatalf("expected body limit error")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
