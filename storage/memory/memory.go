// Package memory is an in-process storage adapter. It is the default when no
// engine is configured and the one tests use.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tradesync/storage"
)

type entry struct {
	v        []byte
	modified time.Time
	exp      time.Time // zero => no TTL
}

type Adapter struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

var (
	_ storage.Adapter  = (*Adapter)(nil)
	_ storage.Modtimer = (*Adapter)(nil)
)

func New() *Adapter { return NewWithClock(time.Now) }

func NewWithClock(now func() time.Time) *Adapter {
	return &Adapter{m: make(map[string]entry), now: now}
}

func (a *Adapter) Read(_ context.Context, key string) ([]byte, bool, error) {
	a.mu.RLock()
	e, ok := a.m[key]
	a.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !a.now().Before(e.exp) {
		a.mu.Lock()
		delete(a.m, key)
		a.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (a *Adapter) Write(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := a.now()
	e := entry{v: append([]byte(nil), value...), modified: now}
	if ttl > 0 {
		e.exp = now.Add(ttl)
	}
	a.mu.Lock()
	a.m[key] = e
	a.mu.Unlock()
	return true, nil
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	delete(a.m, key)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) DeletePrefix(_ context.Context, prefix string) error {
	a.mu.Lock()
	for k := range a.m {
		if strings.HasPrefix(k, prefix) {
			delete(a.m, k)
		}
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) LastModified(_ context.Context, key string) (time.Time, bool, error) {
	a.mu.RLock()
	e, ok := a.m[key]
	a.mu.RUnlock()
	return e.modified, ok, nil
}

// Len reports the number of stored keys, expired ones included.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.m)
}

func (a *Adapter) Close(context.Context) error { return nil }
