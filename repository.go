package tradesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/tradesync/codec"
	"github.com/unkn0wn-root/tradesync/internal/fingerprint"
	"github.com/unkn0wn-root/tradesync/internal/wire"
	"github.com/unkn0wn-root/tradesync/storage"
)

// Fetcher is the remote side of a repository: it performs one request for a
// filter and reports what the transport saw. Timeouts must surface as a
// RawResult.Err satisfying TimedOut.
type Fetcher[F any] interface {
	Fetch(ctx context.Context, filter F) RawResult
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[F any] func(ctx context.Context, filter F) RawResult

func (f FetcherFunc[F]) Fetch(ctx context.Context, filter F) RawResult { return f(ctx, filter) }

// Repository is the cache-aside contract shared by every concrete repository.
// V is the cached value, F the filter whose equality defines cache identity.
type Repository[V any, F any] interface {
	FetchOrLoad(ctx context.Context, filter F, freshness time.Duration) Outcome[V]
	Write(ctx context.Context, filter F, value V) error
	Invalidate(ctx context.Context, filter F) error
	InvalidateAll(ctx context.Context) error
	FetchedAt(ctx context.Context, filter F) (time.Time, bool)
}

// Options configure a CachedRepository.
// Namespace, Env (from NewEnv) and Remote are required; others have defaults.
type Options[V any, F any] struct {
	Namespace string // e.g. "orders", "positions"; isolates keys and InvalidateAll
	Env       *Env
	Remote    Fetcher[F]

	Codec     codec.Codec[V] // nil => JSON
	Handlers  Handlers[V]    // classification overrides for this repository
	Freshness time.Duration  // 0 => DefaultFreshness

	// EntryTTL bounds how long entries stay in storage at all. Keep it well
	// above Freshness: expired entries can no longer serve as a stale fallback.
	// 0 => no expiry.
	EntryTTL time.Duration
	// FetchTimeout bounds one remote call. 0 => only the transport's own timeout.
	FetchTimeout time.Duration
}

// CachedRepository coordinates storage and remote fetches for one namespace.
type CachedRepository[V any, F any] struct {
	ns       string
	prefix   string
	epochKey string

	env      *Env
	log      Logger
	hooks    Hooks
	remote   Fetcher[F]
	codec    codec.Codec[V]
	handlers Handlers[V]

	freshness    time.Duration
	ttl          time.Duration
	fetchTimeout time.Duration

	// in-flight remote fetches keyed by storage key
	flights singleflight.Group
}

var _ Repository[struct{}, struct{}] = (*CachedRepository[struct{}, struct{}])(nil)

func NewRepository[V any, F any](opts Options[V, F]) (*CachedRepository[V, F], error) {
	if opts.Namespace == "" {
		return nil, errors.New("tradesync: namespace is required")
	}
	if opts.Env == nil || opts.Env.Storage == nil {
		return nil, errors.New("tradesync: env with storage is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("tradesync: remote fetcher is required")
	}
	env := opts.Env
	if !env.ready {
		return nil, errors.New("tradesync: env must be built with NewEnv")
	}

	r := &CachedRepository[V, F]{
		ns:           opts.Namespace,
		prefix:       "entry:" + opts.Namespace + ":",
		epochKey:     "epoch:" + opts.Namespace,
		env:          env,
		log:          WithFields(env.Logger, Fields{"ns": opts.Namespace}),
		hooks:        env.Hooks,
		remote:       opts.Remote,
		codec:        opts.Codec,
		handlers:     opts.Handlers,
		freshness:    coalesce(opts.Freshness, DefaultFreshness),
		ttl:          opts.EntryTTL,
		fetchTimeout: opts.FetchTimeout,
	}
	if r.codec == nil {
		r.codec = codec.JSON[V]{}
	}
	return r, nil
}

func (r *CachedRepository[V, F]) Namespace() string { return r.ns }

// FetchOrLoad returns the cached value for filter when it is younger than
// freshness, otherwise joins or starts the single remote fetch for it.
// freshness 0 uses the repository default; a negative window forces a remote call.
// Failures fall back to a cached value marked Stale when one exists.
func (r *CachedRepository[V, F]) FetchOrLoad(ctx context.Context, filter F, freshness time.Duration) Outcome[V] {
	key, err := r.storageKey(filter)
	if err != nil {
		// no identity, no cache: go straight to the remote side
		r.log.Warn("filter fingerprint failed; bypassing cache", Fields{"err": err})
		return Classify(r.remote.Fetch(ctx, filter), r.handlers)
	}

	if freshness == 0 {
		freshness = r.freshness
	}
	if freshness < 0 {
		r.hooks.CacheMiss(r.ns, "forced")
	} else if e, v, ok := r.load(ctx, key); !ok {
		r.hooks.CacheMiss(r.ns, "absent")
	} else if r.env.Now().Sub(e.FetchedAt) < freshness {
		r.hooks.CacheHit(r.ns)
		out := Success(v)
		out.FetchedAt = e.FetchedAt
		return out
	} else {
		r.hooks.CacheMiss(r.ns, "expired")
	}

	res, _, shared := r.flights.Do(key, func() (any, error) {
		return r.refresh(ctx, key, filter), nil
	})
	if shared {
		r.hooks.FetchShared(r.ns)
	}
	return res.(Outcome[V])
}

// refresh runs once per flight. It is detached from the first caller's
// cancellation because joiners wait on the same result.
func (r *CachedRepository[V, F]) refresh(ctx context.Context, key string, filter F) Outcome[V] {
	fctx := context.WithoutCancel(ctx)
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, r.fetchTimeout)
		defer cancel()
	}

	obs, gensOK := r.gens(fctx, key)
	start := r.env.Now()
	out := Classify(r.remote.Fetch(fctx, filter), r.handlers)
	r.hooks.RemoteFetch(r.ns, out.Kind, r.env.Now().Sub(start))

	switch out.Kind {
	case KindSuccess:
		out.FetchedAt = r.env.Now()
		if gensOK {
			r.persist(fctx, key, out.Value, obs, out.FetchedAt)
		}
		return out
	case KindEmpty:
		return out
	}

	e, v, ok := r.load(fctx, key)
	if !ok {
		return out
	}
	r.hooks.StaleServed(r.ns, out.Kind)
	r.log.Debug("remote failed; serving stale entry", Fields{
		"kind": out.Kind.String(), "code": out.Code, "age": r.env.Now().Sub(e.FetchedAt).String(),
	})
	stale := Success(v)
	stale.Stale = true
	stale.FetchedAt = e.FetchedAt
	stale.Message = out.Err().Error()
	return stale
}

// Write stores value as the current entry for filter, stamped now. It bumps
// the key generation first so a fetch already in flight cannot overwrite it.
func (r *CachedRepository[V, F]) Write(ctx context.Context, filter F, value V) error {
	key, err := r.storageKey(filter)
	if err != nil {
		return err
	}
	g, err := r.env.Gens.Bump(ctx, key)
	if err != nil {
		r.hooks.GenStoreError("bump", err)
		return fmt.Errorf("tradesync: write %s: %w", key, err)
	}
	epoch, err := r.env.Gens.Snapshot(ctx, r.epochKey)
	if err != nil {
		r.hooks.GenStoreError("snapshot", err)
		return fmt.Errorf("tradesync: write %s: %w", key, err)
	}
	payload, err := r.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("tradesync: encode %s: %w", key, err)
	}
	frame := wire.Encode(wire.Entry{Gen: g, Epoch: epoch, FetchedAt: r.env.Now(), Payload: payload})
	ok, err := r.env.Storage.Write(ctx, key, frame, r.ttl)
	if err != nil {
		r.hooks.StorageError("write", key, err)
		return fmt.Errorf("tradesync: write %s: %w", key, err)
	}
	if !ok {
		r.hooks.WriteRejected(key)
		r.log.Warn("storage rejected optimistic write", Fields{"key": key})
	}
	return nil
}

// Invalidate drops the entry for filter; the next FetchOrLoad goes remote.
// It fails only when neither the generation bump nor the delete succeeded.
func (r *CachedRepository[V, F]) Invalidate(ctx context.Context, filter F) error {
	key, err := r.storageKey(filter)
	if err != nil {
		return err
	}
	return r.invalidateKey(ctx, key)
}

func (r *CachedRepository[V, F]) invalidateKey(ctx context.Context, key string) error {
	newGen, bumpErr := r.env.Gens.Bump(ctx, key)
	if bumpErr != nil {
		r.hooks.GenStoreError("bump", bumpErr)
	}
	delErr := r.env.Storage.Delete(ctx, key)
	if delErr != nil {
		r.hooks.StorageError("delete", key, delErr)
	}
	if bumpErr != nil && delErr != nil {
		r.hooks.InvalidateOutage(key, bumpErr, delErr)
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	r.log.Debug("invalidated key", Fields{"key": key, "newGen": newGen})
	return nil
}

// InvalidateAll drops every entry of the namespace by bumping its epoch and,
// where the engine supports it, deleting by prefix.
func (r *CachedRepository[V, F]) InvalidateAll(ctx context.Context) error {
	epoch, bumpErr := r.env.Gens.Bump(ctx, r.epochKey)
	if bumpErr != nil {
		r.hooks.GenStoreError("bump", bumpErr)
	}
	delErr := r.env.Storage.DeletePrefix(ctx, r.prefix)
	if errors.Is(delErr, storage.ErrPrefixUnsupported) {
		if bumpErr != nil {
			return &InvalidateError{Key: r.prefix, BumpErr: bumpErr}
		}
		delErr = nil
	} else if delErr != nil {
		r.hooks.StorageError("delete", r.prefix, delErr)
	}
	if bumpErr != nil && delErr != nil {
		r.hooks.InvalidateOutage(r.prefix, bumpErr, delErr)
		return &InvalidateError{Key: r.prefix, BumpErr: bumpErr, DelErr: delErr}
	}
	r.log.Debug("invalidated namespace", Fields{"epoch": epoch})
	return nil
}

// FetchedAt reports when the entry for filter was last written.
func (r *CachedRepository[V, F]) FetchedAt(ctx context.Context, filter F) (time.Time, bool) {
	key, err := r.storageKey(filter)
	if err != nil {
		return time.Time{}, false
	}
	if mt, ok := r.env.Storage.(storage.Modtimer); ok {
		at, found, err := mt.LastModified(ctx, key)
		if err == nil {
			return at, found
		}
		r.hooks.StorageError("read", key, err)
	}
	e, _, ok := r.load(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	return e.FetchedAt, true
}

type genPair struct {
	key, epoch uint64
}

func (r *CachedRepository[V, F]) gens(ctx context.Context, key string) (genPair, bool) {
	m, err := r.env.Gens.SnapshotMany(ctx, []string{key, r.epochKey})
	if err != nil {
		r.hooks.GenStoreError("snapshot", err)
		r.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		return genPair{}, false
	}
	return genPair{key: m[key], epoch: m[r.epochKey]}, true
}

// load reads and validates the entry for key. Any failure is a miss;
// unusable entries are deleted.
func (r *CachedRepository[V, F]) load(ctx context.Context, key string) (wire.Entry, V, bool) {
	var zero V
	raw, ok, err := r.env.Storage.Read(ctx, key)
	if err != nil {
		r.hooks.StorageError("read", key, err)
		r.log.Warn("storage read failed; treating as miss", Fields{"key": key, "err": err})
		return wire.Entry{}, zero, false
	}
	if !ok {
		return wire.Entry{}, zero, false
	}
	e, err := wire.Decode(raw)
	if err != nil {
		r.selfHeal(ctx, key, "corrupt")
		return wire.Entry{}, zero, false
	}
	cur, ok := r.gens(ctx, key)
	if !ok {
		return wire.Entry{}, zero, false
	}
	if e.Gen != cur.key || e.Epoch != cur.epoch {
		r.selfHeal(ctx, key, "gen_mismatch")
		return wire.Entry{}, zero, false
	}
	v, err := r.codec.Decode(e.Payload)
	if err != nil {
		r.selfHeal(ctx, key, "value_decode")
		return wire.Entry{}, zero, false
	}
	return e, v, true
}

// persist writes a fetched value iff the generations observed before the
// remote call are still current. Failures are logged, never returned.
func (r *CachedRepository[V, F]) persist(ctx context.Context, key string, v V, obs genPair, at time.Time) {
	payload, err := r.codec.Encode(v)
	if err != nil {
		r.log.Warn("encode fetched value failed; not cached", Fields{"key": key, "err": err})
		return
	}
	if cur, ok := r.gens(ctx, key); !ok || cur != obs {
		r.hooks.WriteSkipped(key)
		r.log.Debug("persist skipped (gen moved)", Fields{"key": key, "obs": obs.key})
		return
	}
	frame := wire.Encode(wire.Entry{Gen: obs.key, Epoch: obs.epoch, FetchedAt: at, Payload: payload})
	ok, err := r.env.Storage.Write(ctx, key, frame, r.ttl)
	if err != nil {
		r.hooks.StorageError("write", key, err)
		r.log.Warn("storage write failed; value returned uncached", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		r.hooks.WriteRejected(key)
		r.log.Debug("storage rejected write (pressure)", Fields{"key": key})
	}
}

func (r *CachedRepository[V, F]) selfHeal(ctx context.Context, key, reason string) {
	r.hooks.SelfHeal(key, reason)
	if err := r.env.Storage.Delete(ctx, key); err != nil {
		r.hooks.StorageError("delete", key, err)
	}
}

func (r *CachedRepository[V, F]) storageKey(filter F) (string, error) {
	fp, err := fingerprint.Of(filter)
	if err != nil {
		return "", err
	}
	return r.prefix + fp, nil
}
