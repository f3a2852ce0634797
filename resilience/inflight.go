package resilience

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Inflight caps the number of concurrent calls allowed through an
// Executor, protecting the process from piling up slow upstream calls.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: Acquire blocks until capacity or ctx cancellation; in
//     fail-fast mode a full cap rejects with ErrTooManyInflight instead.
type Inflight struct {
	sem      *semaphore.Weighted
	failFast bool
	max      int64
	active   atomic.Int64
	rejected atomic.Int64
}

// NewInflight builds a cap admitting max concurrent calls. When failFast
// is true a full cap rejects immediately instead of queueing.
func NewInflight(max int, failFast bool) *Inflight {
	if max <= 0 {
		max = 10
	}
	return &Inflight{
		sem:      semaphore.NewWeighted(int64(max)),
		failFast: failFast,
		max:      int64(max),
	}
}

// Acquire claims a slot. Every successful Acquire must be paired with a
// Release.
func (f *Inflight) Acquire(ctx context.Context) error {
	if f.failFast {
		if !f.sem.TryAcquire(1) {
			f.rejected.Add(1)
			return ErrTooManyInflight
		}
		f.active.Add(1)
		return nil
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		f.rejected.Add(1)
		return err
	}
	f.active.Add(1)
	return nil
}

// Release returns a slot.
func (f *Inflight) Release() {
	f.active.Add(-1)
	f.sem.Release(1)
}

// InflightMetrics reports cap utilization.
type InflightMetrics struct {
	Active   int64
	Max      int64
	Rejected int64
}

// Metrics returns current utilization counters.
func (f *Inflight) Metrics() InflightMetrics {
	return InflightMetrics{
		Active:   f.active.Load(),
		Max:      f.max,
		Rejected: f.rejected.Load(),
	}
}
