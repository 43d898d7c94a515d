package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/storage/memory"
	"github.com/unkn0wn-root/tradesync/stream"
)

func TestRepositoryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	env, err := tradesync.NewEnv(tradesync.Env{Storage: memory.New(), Hooks: m})
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	defer env.Close(context.Background())

	fail := false
	repo, err := tradesync.NewRepository(tradesync.Options[[]byte, string]{
		Namespace: "orders",
		Env:       env,
		Remote: tradesync.FetcherFunc[string](func(context.Context, string) tradesync.RawResult {
			if fail {
				return tradesync.RawResult{Status: 502}
			}
			return tradesync.RawResult{Status: 200, Body: []byte("ok")}
		}),
	})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}

	ctx := context.Background()
	repo.FetchOrLoad(ctx, "open", 0)
	repo.FetchOrLoad(ctx, "open", 0)
	fail = true
	repo.FetchOrLoad(ctx, "open", -1)

	if got := testutil.ToFloat64(m.lookups.WithLabelValues("orders", "hit")); got != 1 {
		t.Fatalf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.lookups.WithLabelValues("orders", "absent")); got != 1 {
		t.Fatalf("absent misses = %v", got)
	}
	if got := testutil.ToFloat64(m.remoteFetches.WithLabelValues("orders", "server_error")); got != 1 {
		t.Fatalf("server errors = %v", got)
	}
	if got := testutil.ToFloat64(m.stale.WithLabelValues("orders", "server_error")); got != 1 {
		t.Fatalf("stale served = %v", got)
	}
	if n := testutil.CollectAndCount(m.remoteLatency); n != 1 {
		t.Fatalf("latency series = %d", n)
	}
}

func TestStreamMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StateChange(stream.Disconnected, stream.Connected)
	m.EventDropped("heartbeat")
	m.EventDropped("heartbeat")
	m.EventDelivered(2)
	m.OpenFailed(1, tradesync.KindNetworkFailure)
	m.StreamTerminated(errors.New("reset"))

	if got := testutil.ToFloat64(m.streamState); got != float64(stream.Connected) {
		t.Fatalf("state = %v", got)
	}
	if got := testutil.ToFloat64(m.streamDropped.WithLabelValues("heartbeat")); got != 2 {
		t.Fatalf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.streamOpenFails.WithLabelValues("network_failure")); got != 1 {
		t.Fatalf("open failures = %v", got)
	}
	if testutil.ToFloat64(m.streamEvents) != 1 || testutil.ToFloat64(m.streamTerminal) != 1 {
		t.Fatalf("events/terminal counters wrong")
	}
}

func TestNewRegistersOnce(t *testing.T) {
	reg := NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("second registration on the same registry should panic")
		}
	}()
	New(reg)
}
