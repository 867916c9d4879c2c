// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package distributor spreads decoded payloads across the active worker
// set. All records of one payload go to one worker so their relative
// order survives into the batch; across payloads there is no ordering
// contract.
package distributor // import "github.com/telepipe/telepipe/internal/distributor"

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/worker"
)

// Distributor picks a worker per payload, preferring the shallowest
// queue for the payload's signal type and rotating between ties.
type Distributor struct {
	set  *worker.Set
	next atomic.Uint64
}

// New builds a distributor over the given worker set.
func New(set *worker.Set) *Distributor {
	return &Distributor{set: set}
}

// Pick returns the active, non-draining worker with the shallowest queue
// for sig. It returns model.ErrNoWorkers when none qualifies.
func (d *Distributor) Pick(sig model.Signal) (*worker.Worker, error) {
	workers := d.set.Snapshot()
	n := len(workers)
	if n == 0 {
		return nil, model.ErrNoWorkers
	}
	start := int(d.next.Add(1)) % n
	var best *worker.Worker
	bestDepth := 0
	for i := 0; i < n; i++ {
		w := workers[(start+i)%n]
		if w.Draining() {
			continue
		}
		depth := w.Depth(sig)
		if best == nil || depth < bestDepth {
			best, bestDepth = w, depth
		}
	}
	if best == nil {
		return nil, model.ErrNoWorkers
	}
	return best, nil
}

// Dispatch enqueues one decoded payload onto a single worker, waiting up
// to the context deadline when its queue is full. If the chosen worker
// starts draining mid-payload, the remaining records move to another
// worker; records already enqueued stay put, which at-least-once permits.
func (d *Distributor) Dispatch(ctx context.Context, recs []model.Record) error {
	return d.dispatch(recs, func(w *worker.Worker, rec model.Record) error {
		return w.Enqueue(ctx, rec)
	})
}

// TryDispatch is Dispatch without the bounded wait: a full queue fails
// immediately with model.ErrQueueFull. Used by the request/response
// binding, whose callers retry.
func (d *Distributor) TryDispatch(recs []model.Record) error {
	return d.dispatch(recs, func(w *worker.Worker, rec model.Record) error {
		return w.TryEnqueue(rec)
	})
}

func (d *Distributor) dispatch(recs []model.Record, enqueue func(*worker.Worker, model.Record) error) error {
	if len(recs) == 0 {
		return nil
	}
	sig := recs[0].Signal
	w, err := d.Pick(sig)
	if err != nil {
		return err
	}
	for i := 0; i < len(recs); {
		if err := enqueue(w, recs[i]); err != nil {
			if errors.Is(err, model.ErrDraining) {
				// Lost the race with a scale-down decision; move the rest
				// of the payload to another worker. Draining is one-way and
				// Pick skips draining workers, so this terminates.
				if w, err = d.Pick(sig); err != nil {
					return err
				}
				continue
			}
			return err
		}
		i++
	}
	return nil
}
