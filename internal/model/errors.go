// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model // import "github.com/telepipe/telepipe/internal/model"

import "errors"

var (
	// ErrQueueFull is returned when an ingestion queue is at capacity and
	// the bounded enqueue wait, if any, has elapsed. It is surfaced to the
	// caller as a retryable condition.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrBatchSealed is returned on an attempt to append to a batch that
	// has already been sealed and handed to export.
	ErrBatchSealed = errors.New("batch already sealed")

	// ErrNoWorkers is returned by the distributor when no active,
	// non-draining worker is available to accept a payload.
	ErrNoWorkers = errors.New("no active workers")

	// ErrDraining is returned when a payload is routed to a worker that
	// has begun draining and no longer accepts new records.
	ErrDraining = errors.New("worker is draining")
)

// DecodeError wraps a payload decoding failure. The request carrying the
// payload is rejected as a whole; nothing is enqueued.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
