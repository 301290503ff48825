// Package runner is the concurrency core: a fixed-size worker pool over
// a shared claim cursor, and the per-target task executor with its
// two-tier timeout policy.
package runner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"concord/internal/population"
	"concord/internal/resultstore"
)

// Task executes one target to completion and returns its record. Task
// implementations never return an error across the pool boundary; all
// per-target failures are captured inside the record.
type Task func(ctx context.Context, t population.Target) resultstore.Record

// Pool dispatches targets to a fixed number of workers. The pool itself
// is the backpressure mechanism: at most Concurrency tasks are in
// flight at any instant, and there is no fan-out beyond the workers.
type Pool struct {
	Concurrency int
}

// Run processes every target exactly once and hands each completed
// record to done. Workers claim indices from a shared monotonic cursor,
// so claim order follows the input sequence regardless of concurrency;
// completion order is not ordered. A non-nil error from done (a store
// write failure) is fatal: it cancels the remaining claims and is
// returned from Run.
func (p *Pool) Run(ctx context.Context, targets []population.Target, task Task, done func(resultstore.Record) error) error {
	if len(targets) == 0 {
		return nil
	}
	workers := p.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	var cursor atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(targets) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				rec := task(gctx, targets[idx])
				if err := done(rec); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
