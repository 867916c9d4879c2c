// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package processor // import "github.com/telepipe/telepipe/internal/processor"

import (
	"time"

	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/telemetry"
)

// Chain runs records through the configured stages in declaration order
// and hands the survivors to the batcher. Each worker owns one chain per
// signal type; a chain is never shared between goroutines.
type Chain struct {
	stages  []Stage
	batcher *Batcher
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewChain assembles a chain from record-wise stages and a batcher.
func NewChain(stages []Stage, batcher *Batcher, logger *zap.Logger, metrics *telemetry.Metrics) *Chain {
	return &Chain{
		stages:  stages,
		batcher: batcher,
		logger:  logger,
		metrics: metrics,
	}
}

// Process runs one record through the chain. A stage failure drops that
// record only, counted against the failing stage. The returned batch is
// non-nil when this record sealed it by size.
func (c *Chain) Process(rec model.Record) *model.Batch {
	for _, stage := range c.stages {
		if err := stage.ProcessRecord(&rec); err != nil {
			c.metrics.DroppedRecords.WithLabelValues(rec.Signal.String(), stage.Name()).Inc()
			c.logger.Debug("stage dropped record",
				zap.String("stage", stage.Name()),
				zap.String("signal", rec.Signal.String()),
				zap.Error(err))
			return nil
		}
	}
	return c.batcher.Add(rec)
}

// SealExpired seals open batches past the age threshold.
func (c *Chain) SealExpired(now time.Time) []*model.Batch {
	return c.batcher.SealExpired(now)
}

// Flush seals every open batch. Used on drain and shutdown.
func (c *Chain) Flush() []*model.Batch {
	return c.batcher.Flush()
}

// PendingRecords returns the number of records held in open batches.
func (c *Chain) PendingRecords() int {
	return c.batcher.OpenRecords()
}
