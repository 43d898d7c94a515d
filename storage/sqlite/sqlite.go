// Package sqlite persists cache entries in a local SQLite file so cached
// portfolio and order data survives process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/tradesync/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key         TEXT PRIMARY KEY,
	value       BLOB NOT NULL,
	modified_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS cache_entries_expires ON cache_entries (expires_at);
CREATE TABLE IF NOT EXISTS cache_gens (
	key TEXT PRIMARY KEY,
	gen INTEGER NOT NULL
);
`

type Adapter struct {
	db  *sql.DB
	now func() time.Time

	closeOnce sync.Once
	closeErr  error
}

var (
	_ storage.Adapter  = (*Adapter)(nil)
	_ storage.Modtimer = (*Adapter)(nil)
)

type Config struct {
	// Path of the database file. ":memory:" keeps everything in-process.
	Path string
	// Now overrides the clock (tests).
	Now func() time.Time
}

func Open(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite storage: path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: open %s: %w", cfg.Path, err)
	}
	// a single writer avoids SQLITE_BUSY; ":memory:" also needs one shared conn
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite storage: init schema: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{db: db, now: now}, nil
}

func (a *Adapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value   []byte
		expires int64
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires != 0 && a.now().UnixNano() >= expires {
		_ = a.Delete(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (a *Adapter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := a.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}
	_, err := a.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, modified_at, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value,
	modified_at = excluded.modified_at, expires_at = excluded.expires_at`,
		key, value, now.UnixNano(), expires)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	return err
}

func (a *Adapter) LastModified(ctx context.Context, key string) (time.Time, bool, error) {
	var nanos int64
	err := a.db.QueryRowContext(ctx,
		`SELECT modified_at FROM cache_entries WHERE key = ?`, key).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, nanos), true, nil
}

// Purge drops expired rows. Reads already ignore them; this reclaims space.
func (a *Adapter) Purge(ctx context.Context) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at <= ?`, a.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a *Adapter) Close(context.Context) error {
	a.closeOnce.Do(func() { a.closeErr = a.db.Close() })
	return a.closeErr
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
