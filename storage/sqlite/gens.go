package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/unkn0wn-root/tradesync/genstore"
)

// Gens keeps generation counters in the adapter's database, next to the
// entries they guard, so both survive a restart together.
type Gens struct {
	db *sql.DB
}

var _ genstore.GenStore = (*Gens)(nil)

// Generations returns the adapter's persistent GenStore. It shares the
// adapter's connection; closing the adapter closes it.
func (a *Adapter) Generations() genstore.GenStore { return &Gens{db: a.db} }

func (g *Gens) Snapshot(ctx context.Context, key string) (uint64, error) {
	var n int64
	err := g.db.QueryRowContext(ctx, `SELECT gen FROM cache_gens WHERE key = ?`, key).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (g *Gens) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		out[k] = 0
		args[i] = k
	}
	q := `SELECT key, gen FROM cache_gens WHERE key IN (?` + strings.Repeat(", ?", len(keys)-1) + `)`
	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int64
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = uint64(n)
	}
	return out, rows.Err()
}

func (g *Gens) Bump(ctx context.Context, key string) (uint64, error) {
	var n int64
	err := g.db.QueryRowContext(ctx, `
INSERT INTO cache_gens (key, gen) VALUES (?, 1)
ON CONFLICT(key) DO UPDATE SET gen = gen + 1
RETURNING gen`, key).Scan(&n)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Cleanup is a no-op: a forgotten counter reads as 0 and would make an
// invalidated generation-0 entry readable again.
func (g *Gens) Cleanup(time.Duration) {}

func (g *Gens) Close(context.Context) error { return nil }
