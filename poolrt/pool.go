// Package poolrt is the concurrency runtime (spec.md §4.7): a bounded
// worker pool plus the two main-thread recovery gates (no-internet,
// disk-full) the original's MultiCondition disjunction collapses to once
// expressed with channels and context.Context (spec.md §9 "Thread +
// Condition ad-hoc coordination").
package poolrt

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of work submitted to the pool (spec.md §4.6 "submitted to
// the worker pool").
type Job func(ctx context.Context) error

// Pool is a bounded worker pool with backpressure: Submit blocks once
// `queue` jobs are buffered, the Go equivalent of spec.md's "worker queue is
// bounded (1000)" plus the MultiCondition wait on queue.not_full.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context
	jobs  chan Job
}

// New starts a pool of n workers draining a queue of the given depth. The
// pool's context (see Context) is canceled as soon as any job returns a
// non-nil error, mirroring spec.md §4.6 "on exception cancel the pool".
func New(ctx context.Context, workers, queueDepth int) *Pool {
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		group: group,
		ctx:   gctx,
		jobs:  make(chan Job, queueDepth),
	}

	for i := 0; i < workers; i++ {
		group.Go(p.worker)
	}
	return p
}

func (p *Pool) worker() error {
	for {
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case job, ok := <-p.jobs:
			if !ok {
				return nil
			}
			if err := job(p.ctx); err != nil {
				return err
			}
		}
	}
}

// Submit enqueues a job, blocking while the queue is full. It returns the
// pool's context error if the pool has already been canceled (by a prior
// job's failure or by the caller), matching spec.md's "drops pending work"
// on abort.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close stops accepting new jobs and waits for in-flight and queued work to
// drain, returning the first worker error if any (spec.md §4.6 "drain the
// worker pool").
func (p *Pool) Close() error {
	close(p.jobs)
	return p.group.Wait()
}

// Context returns the pool's derived context, canceled once any worker
// returns an error.
func (p *Pool) Context() context.Context {
	return p.ctx
}
