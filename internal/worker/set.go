// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package worker // import "github.com/telepipe/telepipe/internal/worker"

import (
	"sync"
	"sync/atomic"
)

// Set is the membership list of active workers. It follows a
// single-writer discipline: only the capacity controller mutates it,
// while receivers read lock-free snapshots on every dispatch.
type Set struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]*Worker]
}

// NewSet creates an empty worker set.
func NewSet() *Set {
	s := &Set{}
	empty := make([]*Worker, 0)
	s.snapshot.Store(&empty)
	return s
}

// Snapshot returns the current membership. The returned slice is
// immutable; callers must not modify it.
func (s *Set) Snapshot() []*Worker {
	return *s.snapshot.Load()
}

// Len returns the current worker count.
func (s *Set) Len() int {
	return len(s.Snapshot())
}

// Add registers a worker and publishes a new snapshot.
func (s *Set) Add(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.snapshot.Load()
	next := make([]*Worker, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, w)
	s.snapshot.Store(&next)
}

// Remove deregisters a worker by id and returns it, or nil when the id
// is unknown.
func (s *Set) Remove(id string) *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.snapshot.Load()
	next := make([]*Worker, 0, len(cur))
	var removed *Worker
	for _, w := range cur {
		if w.ID() == id && removed == nil {
			removed = w
			continue
		}
		next = append(next, w)
	}
	s.snapshot.Store(&next)
	return removed
}
