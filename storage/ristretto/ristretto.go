package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tradesync/storage"
)

type Adapter struct {
	c *rc.Cache
}

var _ storage.Adapter = (*Adapter)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; each entry costs len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Adapter, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{c: c}, nil
}

func (a *Adapter) Read(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := a.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		a.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Write is buffered by ristretto; Wait makes the value visible to the next
// Read, which read-after-write callers rely on.
func (a *Adapter) Write(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok := a.c.SetWithTTL(key, value, int64(len(value)), ttl)
	a.c.Wait()
	return ok, nil
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	a.c.Del(key)
	return nil
}

// DeletePrefix is unsupported: ristretto stores hashed keys only.
func (a *Adapter) DeletePrefix(context.Context, string) error {
	return storage.ErrPrefixUnsupported
}

func (a *Adapter) Close(_ context.Context) error {
	a.c.Wait()
	a.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when enabled in Config.
func (a *Adapter) Metrics() *rc.Metrics { return a.c.Metrics }
