// Package dbtest provides an in-memory stand-in for db.TxRunner so services
// can be tested for all-or-nothing behavior without a database.
package dbtest

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory stores that take part in a fake
// transaction. Snapshot captures the current contents and returns a func
// that restores them.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Runner is a db.TxRunner that snapshots every registered store before fn
// runs and restores them all when fn fails.
type Runner struct {
	mu        sync.Mutex
	stores    []Snapshotter
	Commits   int
	Rollbacks int
}

func NewRunner(stores ...Snapshotter) *Runner {
	return &Runner{stores: stores}
}

// Track registers more stores after construction.
func (r *Runner) Track(stores ...Snapshotter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, stores...)
}

type activeKey struct{}

func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(activeKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	restores := make([]func(), 0, len(r.stores))
	for _, s := range r.stores {
		restores = append(restores, s.Snapshot())
	}
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, activeKey{}, true)); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		r.Rollbacks++
		return err
	}
	r.Commits++
	return nil
}
