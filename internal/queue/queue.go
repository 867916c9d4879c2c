// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the bounded per-signal FIFO that decouples the
// wire receivers from the processing pipeline and gives the pipeline its
// backpressure point.
package queue // import "github.com/telepipe/telepipe/internal/queue"

import (
	"context"
	"errors"

	"github.com/telepipe/telepipe/internal/model"
)

// Queue is a bounded FIFO of records for a single signal type. Enqueue
// order of a single producer is preserved; there is no cross-producer
// ordering contract.
type Queue struct {
	ch chan model.Record
}

// New creates a queue holding at most capacity records.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan model.Record, capacity)}
}

// TryEnqueue adds a record without waiting. It returns model.ErrQueueFull
// when the queue is at capacity.
func (q *Queue) TryEnqueue(rec model.Record) error {
	select {
	case q.ch <- rec:
		return nil
	default:
		return model.ErrQueueFull
	}
}

// Enqueue adds a record, waiting up to the context deadline for space. An
// elapsed deadline is reported as model.ErrQueueFull; any other context
// error is returned as-is so shutdown cancellation stays distinguishable
// from backpressure.
func (q *Queue) Enqueue(ctx context.Context, rec model.Record) error {
	select {
	case q.ch <- rec:
		return nil
	default:
	}
	select {
	case q.ch <- rec:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.ErrQueueFull
		}
		return ctx.Err()
	}
}

// TryDequeue removes the oldest record without waiting.
func (q *Queue) TryDequeue() (rec model.Record, ok bool) {
	select {
	case rec = <-q.ch:
		return rec, true
	default:
		return model.Record{}, false
	}
}

// C exposes the receive side of the queue for use in a consumer's select
// loop. Only the single owning worker goroutine may receive from it.
func (q *Queue) C() <-chan model.Record {
	return q.ch
}

// Depth returns the number of records currently buffered.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Capacity returns the maximum number of buffered records.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}
