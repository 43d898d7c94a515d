// Package metrics exports repository and stream hook events as Prometheus
// metrics. A Metrics value implements both tradesync.Hooks and stream.Hooks.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/stream"
)

type Metrics struct {
	lookups       *prometheus.CounterVec
	shared        *prometheus.CounterVec
	remoteFetches *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	stale         *prometheus.CounterVec
	selfHeals     *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	writesSkipped prometheus.Counter
	writesReject  prometheus.Counter
	genErrors     *prometheus.CounterVec
	outages       prometheus.Counter

	streamState     prometheus.Gauge
	streamOpenFails *prometheus.CounterVec
	streamDropped   *prometheus.CounterVec
	streamEvents    prometheus.Counter
	streamTerminal  prometheus.Counter
}

var (
	_ tradesync.Hooks = (*Metrics)(nil)
	_ stream.Hooks    = (*Metrics)(nil)
)

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_cache_lookups_total",
			Help: "Repository lookups by namespace and result (hit, absent, expired, forced)",
		}, []string{"ns", "result"}),
		shared: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_fetch_shared_total",
			Help: "Callers that joined a remote fetch already in flight",
		}, []string{"ns"}),
		remoteFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_remote_fetches_total",
			Help: "Remote fetches by classified outcome",
		}, []string{"ns", "kind"}),
		remoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradesync_remote_fetch_seconds",
			Help:    "Remote fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"ns"}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_stale_served_total",
			Help: "Stale entries served after a remote failure",
		}, []string{"ns", "cause"}),
		selfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_self_heals_total",
			Help: "Unusable cache entries deleted on read",
		}, []string{"reason"}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_storage_errors_total",
			Help: "Storage adapter errors by operation",
		}, []string{"op"}),
		writesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_writes_skipped_total",
			Help: "Fetched values not persisted because the key moved during the fetch",
		}),
		writesReject: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_writes_rejected_total",
			Help: "Writes refused by the storage engine",
		}),
		genErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_genstore_errors_total",
			Help: "Generation store errors by operation",
		}, []string{"op"}),
		outages: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_invalidate_outages_total",
			Help: "Invalidations where both the generation bump and the delete failed",
		}),
		streamState: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradesync_stream_state",
			Help: "Current stream state (0 disconnected, 1 connecting, 2 connected, 3 backoff)",
		}),
		streamOpenFails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_stream_open_failures_total",
			Help: "Failed stream handshakes by classified outcome",
		}, []string{"kind"}),
		streamDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_stream_events_dropped_total",
			Help: "Stream frames not delivered (heartbeat, malformed)",
		}, []string{"reason"}),
		streamEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_stream_events_total",
			Help: "Stream events broadcast to subscribers",
		}),
		streamTerminal: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_stream_terminated_total",
			Help: "Stream connections ended by a non-graceful error",
		}),
	}
}

func (m *Metrics) CacheHit(ns string)          { m.lookups.WithLabelValues(ns, "hit").Inc() }
func (m *Metrics) CacheMiss(ns, reason string) { m.lookups.WithLabelValues(ns, reason).Inc() }
func (m *Metrics) FetchShared(ns string)       { m.shared.WithLabelValues(ns).Inc() }

func (m *Metrics) RemoteFetch(ns string, kind tradesync.Kind, took time.Duration) {
	m.remoteFetches.WithLabelValues(ns, kind.String()).Inc()
	m.remoteLatency.WithLabelValues(ns).Observe(took.Seconds())
}

func (m *Metrics) StaleServed(ns string, cause tradesync.Kind) {
	m.stale.WithLabelValues(ns, cause.String()).Inc()
}

func (m *Metrics) SelfHeal(_ string, reason string)      { m.selfHeals.WithLabelValues(reason).Inc() }
func (m *Metrics) StorageError(op, _ string, _ error)    { m.storageErrors.WithLabelValues(op).Inc() }
func (m *Metrics) WriteSkipped(string)                   { m.writesSkipped.Inc() }
func (m *Metrics) WriteRejected(string)                  { m.writesReject.Inc() }
func (m *Metrics) GenStoreError(op string, _ error)      { m.genErrors.WithLabelValues(op).Inc() }
func (m *Metrics) InvalidateOutage(string, error, error) { m.outages.Inc() }

func (m *Metrics) StateChange(_, to stream.State) { m.streamState.Set(float64(to)) }
func (m *Metrics) OpenFailed(_ int, kind tradesync.Kind) {
	m.streamOpenFails.WithLabelValues(kind.String()).Inc()
}
func (m *Metrics) EventDropped(reason string) { m.streamDropped.WithLabelValues(reason).Inc() }
func (m *Metrics) EventDelivered(int)         { m.streamEvents.Inc() }
func (m *Metrics) StreamTerminated(error)     { m.streamTerminal.Inc() }

// NewRegistry returns a registry with the Go and process collectors added.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
