// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package exporter routes sealed batches to the export targets whose
// signal affinity matches, with per-target retry, circuit breaking and
// health reporting. Delivery is at-least-once and independent per target.
package exporter // import "github.com/telepipe/telepipe/internal/exporter"

import (
	"context"

	"github.com/telepipe/telepipe/internal/model"
)

// Sink delivers one sealed batch to an external destination. A Sink
// returns nil only when the destination acknowledged the payload.
// Failures that retrying cannot fix must be wrapped with
// backoff.Permanent so the router stops the retry schedule early.
type Sink interface {
	Deliver(ctx context.Context, batch *model.Batch) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch *model.Batch) error

func (f SinkFunc) Deliver(ctx context.Context, batch *model.Batch) error {
	return f(ctx, batch)
}
