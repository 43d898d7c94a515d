package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tradesync/storage"
	"github.com/unkn0wn-root/tradesync/storage/storagetest"
)

// Set TRADESYNC_REDIS_ADDR (e.g. localhost:6379) to run against a real server.
// The tests use DB 15 and flush it.
func TestContract(t *testing.T) {
	addr := os.Getenv("TRADESYNC_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRADESYNC_REDIS_ADDR not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
		if err := rdb.FlushDB(context.Background()).Err(); err != nil {
			t.Fatalf("FlushDB: %v", err)
		}
		a, err := New(Config{Client: rdb, CloseClient: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = a.Close(context.Background()) })
		return a
	})
}

func TestNilClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("err = %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`entry:a*b?[c]\`); got != `entry:a\*b\?\[c\]\\` {
		t.Fatalf("escapeGlob = %q", got)
	}
}
