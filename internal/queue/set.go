// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package queue // import "github.com/telepipe/telepipe/internal/queue"

import (
	"context"

	"github.com/telepipe/telepipe/internal/model"
)

// Set bundles one Queue per signal type. Each worker owns one Set; the
// set is never shared across workers.
type Set struct {
	queues map[model.Signal]*Queue
}

// NewSet creates a Set whose queues each hold at most capacity records.
func NewSet(capacity int) *Set {
	queues := make(map[model.Signal]*Queue, len(model.Signals))
	for _, sig := range model.Signals {
		queues[sig] = New(capacity)
	}
	return &Set{queues: queues}
}

// For returns the queue for a signal type.
func (s *Set) For(sig model.Signal) *Queue {
	return s.queues[sig]
}

// Enqueue routes a record to the queue of its signal type, waiting up to
// the context deadline for space.
func (s *Set) Enqueue(ctx context.Context, rec model.Record) error {
	return s.queues[rec.Signal].Enqueue(ctx, rec)
}

// Depth returns the total number of buffered records across all signals.
func (s *Set) Depth() int {
	total := 0
	for _, q := range s.queues {
		total += q.Depth()
	}
	return total
}

// DepthBySignal returns the buffered record count per signal type.
func (s *Set) DepthBySignal() map[model.Signal]int {
	depths := make(map[model.Signal]int, len(s.queues))
	for sig, q := range s.queues {
		depths[sig] = q.Depth()
	}
	return depths
}

// Capacity returns the total capacity across all signals.
func (s *Set) Capacity() int {
	total := 0
	for _, q := range s.queues {
		total += q.Capacity()
	}
	return total
}

// Empty reports whether every queue in the set is empty.
func (s *Set) Empty() bool {
	return s.Depth() == 0
}
