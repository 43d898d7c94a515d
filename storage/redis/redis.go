package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tradesync/storage"
)

var ErrNilClient = errors.New("redis storage: nil client")

const scanBatch = 256

type Adapter struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ storage.Adapter = (*Adapter)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this adapter exclusively owns the client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Adapter{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (a *Adapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := a.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (a *Adapter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // no expiry
	}
	if err := a.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, key).Err()
}

// DeletePrefix walks the keyspace with SCAN and unlinks matches in batches.
// On a cluster client only the node the command lands on is scanned.
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	match := escapeGlob(prefix) + "*"
	for {
		keys, next, err := a.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := a.rdb.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the client only when this adapter owns it. Repeated calls are no-ops.
func (a *Adapter) Close(context.Context) error {
	if a.closeClient {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
