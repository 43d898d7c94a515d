package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/tradesync"
	"github.com/unkn0wn-root/tradesync/config"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
}

func mustConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAppRepositoryPerEngine(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"memory":    "storage:\n  engine: memory\n",
		"bigcache":  "storage:\n  engine: bigcache\n",
		"ristretto": "storage:\n  engine: ristretto\n  max_cost_mb: 8\n",
		"sqlite":    "storage:\n  engine: sqlite\n  path: " + filepath.Join(dir, "c.db") + "\ncache:\n  codec: msgpack\n",
	}
	for name, y := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := New(ctx, mustConfig(t, y), discard())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Close(ctx)

			calls := 0
			repo, err := NewRepository[quote, string](a, "quotes", tradesync.FetcherFunc[string](
				func(context.Context, string) tradesync.RawResult {
					calls++
					return tradesync.RawResult{Status: 200, Body: []byte(`{"symbol":"AAPL","bid":189.5}`)}
				}))
			if err != nil {
				t.Fatalf("NewRepository: %v", err)
			}

			for i := 0; i < 2; i++ {
				out := repo.FetchOrLoad(ctx, "AAPL", 0)
				if out.Kind != tradesync.KindSuccess || out.Value.Bid != 189.5 {
					t.Fatalf("fetch %d: %+v", i, out)
				}
			}
			if calls != 1 {
				t.Fatalf("remote calls = %d, want 1", calls)
			}
		})
	}
}

func TestAppLoggerBackends(t *testing.T) {
	for _, backend := range []string{"slog", "zap", "logrus"} {
		ctx := context.Background()
		a, err := New(ctx, mustConfig(t, "log:\n  backend: "+backend+"\n  level: warn\n"), discard())
		if err != nil {
			t.Fatalf("%s: New: %v", backend, err)
		}
		a.Logger.Debug("hidden", nil)
		if err := a.Close(ctx); err != nil {
			t.Fatalf("%s: Close: %v", backend, err)
		}
	}
}

func TestAppStreamRequiresURL(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, mustConfig(t, ""), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(ctx)

	if _, err := a.NewStream(); err == nil {
		t.Fatalf("expected error without stream.url")
	}
	if a.Remote != nil {
		t.Fatalf("remote client built without base_url")
	}

	b, err := New(ctx, mustConfig(t, "stream:\n  url: ws://127.0.0.1:1/stream\nremote:\n  base_url: http://127.0.0.1:1\n"), discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close(ctx)
	m, err := b.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if m.State().String() != "disconnected" || b.Remote == nil {
		t.Fatalf("state = %v remote=%v", m.State(), b.Remote)
	}
}
