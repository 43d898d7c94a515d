// Package app builds tradesync components from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/codec"
	"github.com/unkn0wn-root/tradesync/config"
	"github.com/unkn0wn-root/tradesync/genstore"
	asynchook "github.com/unkn0wn-root/tradesync/hooks/async"
	logrusadapter "github.com/unkn0wn-root/tradesync/log/logrus"
	slogadapter "github.com/unkn0wn-root/tradesync/log/slog"
	zapadapter "github.com/unkn0wn-root/tradesync/log/zap"
	"github.com/unkn0wn-root/tradesync/metrics"
	"github.com/unkn0wn-root/tradesync/remote"
	"github.com/unkn0wn-root/tradesync/sloghooks"
	"github.com/unkn0wn-root/tradesync/storage"
	bigcacheadapter "github.com/unkn0wn-root/tradesync/storage/bigcache"
	"github.com/unkn0wn-root/tradesync/storage/memory"
	redisadapter "github.com/unkn0wn-root/tradesync/storage/redis"
	ristrettoadapter "github.com/unkn0wn-root/tradesync/storage/ristretto"
	"github.com/unkn0wn-root/tradesync/storage/sqlite"
	"github.com/unkn0wn-root/tradesync/stream"
	wsopener "github.com/unkn0wn-root/tradesync/stream/websocket"
)

const (
	hookWorkers = 1
	hookQueue   = 1024
)

// App owns everything built from one Config. Close releases it all.
type App struct {
	Config   *config.Config
	Logger   tradesync.Logger
	Env      *tradesync.Env
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Remote   *remote.Client // nil when remote.base_url is unset

	slog       *slog.Logger
	logHooks   *asynchook.Hooks
	rdb        goredis.UniversalClient
	closeFuncs []func() error
}

func New(ctx context.Context, cfg *config.Config, sl *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, slog: sl, Registry: metrics.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if a.Logger, err = a.newLogger(); err != nil {
		return nil, err
	}
	a.Metrics = metrics.New(a.Registry)
	a.logHooks = asynchook.New(sloghooks.New(sl, sloghooks.Options{SelfHealEvery: 10, StaleEvery: 10}), hookWorkers, hookQueue)

	if needsRedis(cfg) {
		a.rdb = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.Storage.Redis.Addr},
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		a.closeFuncs = append(a.closeFuncs, a.rdb.Close)
	}

	store, err := a.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	env := tradesync.Env{
		Storage: store,
		Logger:  a.Logger,
		Hooks:   tradesync.JoinHooks(a.Metrics, a.logHooks),
	}
	// "storage" and "local" leave Gens nil: NewEnv takes the sqlite
	// adapter's persistent generations, or starts in-process ones.
	if cfg.Cache.GenStore == "redis" {
		env.Gens = genstore.NewRedis(a.rdb, "tradesync", cfg.Cache.GenTTL)
	}
	if a.Env, err = tradesync.NewEnv(env); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	if cfg.Remote.BaseURL != "" {
		a.Remote, err = remote.New(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Engine == "redis" || cfg.Cache.GenStore == "redis"
}

func (a *App) newLogger() (tradesync.Logger, error) {
	switch a.Config.Log.Backend {
	case "zap":
		lvl, err := zapcore.ParseLevel(a.Config.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("app: zap level: %w", err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		zl, err := zc.Build()
		if err != nil {
			return nil, fmt.Errorf("app: zap: %w", err)
		}
		a.closeFuncs = append(a.closeFuncs, func() error { _ = zl.Sync(); return nil })
		return zapadapter.New(zl), nil
	case "logrus":
		lvl, err := logrus.ParseLevel(a.Config.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("app: logrus level: %w", err)
		}
		ll := logrus.New()
		ll.SetLevel(lvl)
		ll.SetFormatter(&logrus.JSONFormatter{})
		return logrusadapter.New(ll), nil
	default:
		return slogadapter.New(a.slog), nil
	}
}

func (a *App) newStorage(ctx context.Context) (storage.Adapter, error) {
	sc := a.Config.Storage
	switch sc.Engine {
	case "bigcache":
		return bigcacheadapter.New(bigcacheadapter.Config{Shards: sc.Shards, LifeWindow: sc.LifeWindow})
	case "ristretto":
		mb := sc.MaxCostMB
		if mb <= 0 {
			mb = 64
		}
		return ristrettoadapter.New(ristrettoadapter.Config{
			NumCounters: 1_000_000,
			MaxCost:     mb << 20,
			BufferItems: 64,
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{Client: a.rdb})
	case "sqlite":
		return sqlite.Open(ctx, sqlite.Config{Path: sc.Path})
	default:
		return memory.New(), nil
	}
}

// NewRepository builds a repository over the shared Env with the configured
// codec and freshness policy.
func NewRepository[V any, F any](a *App, namespace string, fetcher tradesync.Fetcher[F]) (*tradesync.CachedRepository[V, F], error) {
	c, err := codec.ByName[V](a.Config.Cache.Codec)
	if err != nil {
		return nil, err
	}
	return tradesync.NewRepository(tradesync.Options[V, F]{
		Namespace:    namespace,
		Env:          a.Env,
		Remote:       fetcher,
		Codec:        c,
		Freshness:    a.Config.Cache.Freshness,
		EntryTTL:     a.Config.Cache.EntryTTL,
		FetchTimeout: a.Config.Cache.FetchTimeout,
	})
}

// NewStream builds a stream manager over the configured websocket endpoint.
// The returned manager is not open yet.
func (a *App) NewStream() (*stream.Manager, error) {
	sc := a.Config.Stream
	if sc.URL == "" {
		return nil, errors.New("app: stream.url is not configured")
	}
	sh := asynchook.NewStream(sloghooks.New(a.slog, sloghooks.Options{DropEvery: 10}), hookWorkers, hookQueue)
	a.closeFuncs = append(a.closeFuncs, func() error { sh.Close(); return nil })

	return stream.New(stream.Options{
		Opener:           &wsopener.Opener{URL: sc.URL, TokenParam: sc.TokenParam},
		Logger:           a.Logger,
		Hooks:            joinStreamHooks{a.Metrics, sh},
		OpenFailureDelay: sc.OpenFailureDelay,
		CompletionDelay:  sc.CompletionDelay,
		HandshakeTimeout: sc.HandshakeTimeout,
		Heartbeat:        sc.Heartbeat,
		ReconnectOnError: sc.ReconnectOnError,
	})
}

// Close releases the Env (storage and owned genstore), flushes queued hook
// events, then closes clients shared by several components.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Env != nil {
		if err := a.Env.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logHooks != nil {
		a.logHooks.Close()
	}
	for i := len(a.closeFuncs) - 1; i >= 0; i-- {
		if err := a.closeFuncs[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFuncs = nil
	return errors.Join(errs...)
}

type joinStreamHooks []stream.Hooks

func (j joinStreamHooks) StateChange(from, to stream.State) {
	for _, h := range j {
		h.StateChange(from, to)
	}
}

func (j joinStreamHooks) OpenFailed(attempt int, kind tradesync.Kind) {
	for _, h := range j {
		h.OpenFailed(attempt, kind)
	}
}

func (j joinStreamHooks) EventDropped(reason string) {
	for _, h := range j {
		h.EventDropped(reason)
	}
}

func (j joinStreamHooks) EventDelivered(n int) {
	for _, h := range j {
		h.EventDelivered(n)
	}
}

func (j joinStreamHooks) StreamTerminated(err error) {
	for _, h := range j {
		h.StreamTerminated(err)
	}
}
