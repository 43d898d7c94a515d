package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tradesync/storage"
)

type Adapter struct {
	c *bc.BigCache
}

var _ storage.Adapter = (*Adapter)(nil)

const defaultEntriesInWindow = 16_384

type Config struct {
	Shards             int           // power of two; 0 => bigcache default
	LifeWindow         time.Duration // global entry lifetime; bigcache has no per-entry TTL
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Adapter, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	// bigcache preallocates MaxEntriesInWindow/Shards*MaxEntrySize per shard;
	// its default sizes a ~300MB queue up front.
	conf.MaxEntriesInWindow = defaultEntriesInWindow
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Adapter{c: c}, nil
}

func (a *Adapter) Read(_ context.Context, key string) ([]byte, bool, error) {
	b, err := a.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Write ignores ttl; bigcache expires entries after the global LifeWindow.
func (a *Adapter) Write(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if err := a.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	err := a.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	var keys []string
	it := a.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry evicted while iterating
			continue
		}
		if strings.HasPrefix(e.Key(), prefix) {
			keys = append(keys, e.Key())
		}
	}
	for _, k := range keys {
		if err := a.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Close(_ context.Context) error {
	return a.c.Close()
}
