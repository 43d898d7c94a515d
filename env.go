package tradesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gen "github.com/unkn0wn-root/tradesync/genstore"
	"github.com/unkn0wn-root/tradesync/storage"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// Env carries the collaborators shared by every repository of one SDK
// instance. Build one per process and pass it to NewRepository; nothing in
// tradesync keeps process-wide state.
type Env struct {
	// Storage is required.
	Storage storage.Adapter

	// Gens nil => the storage's own generations when it persists them
	// (storage/sqlite), else in-process generations with hourly cleanup.
	Gens   gen.GenStore
	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Now    func() time.Time // nil => time.Now

	ownsGens bool
	ready    bool
}

// durableGens is implemented by storage adapters that keep generation
// counters next to their entries, so both survive a restart.
type durableGens interface {
	Generations() gen.GenStore
}

// NewEnv fills defaults. Repositories accept only Envs built here. The
// returned Env owns any in-process GenStore it created.
func NewEnv(e Env) (*Env, error) {
	if e.Storage == nil {
		return nil, errors.New("tradesync: storage is required")
	}
	out := e
	out.Logger = coalesce[Logger](e.Logger, NopLogger{})
	out.Hooks = coalesce[Hooks](e.Hooks, NopHooks{})
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Gens == nil {
		if d, ok := e.Storage.(durableGens); ok {
			out.Gens = d.Generations()
		} else {
			out.Gens = gen.NewLocal(defaultSweep, defaultGenRetention)
			out.ownsGens = true
		}
	}
	out.ready = true
	return &out, nil
}

// Close releases the storage adapter and any GenStore the Env created.
func (e *Env) Close(ctx context.Context) error {
	var errs []error
	if e.ownsGens {
		if err := e.Gens.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("genstore: %w", err))
		}
	}
	if err := e.Storage.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}
