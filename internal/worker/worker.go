// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs the per-instance ingestion pipeline: one bounded
// queue set and one processor chain per signal type, consumed by
// goroutines owned exclusively by this worker. Nothing but the worker-set
// membership list is shared across workers.
package worker // import "github.com/telepipe/telepipe/internal/worker"

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/processor"
	"github.com/telepipe/telepipe/internal/queue"
	"github.com/telepipe/telepipe/internal/telemetry"
)

// Exporter is the downstream the worker hands sealed batches to.
type Exporter interface {
	Export(ctx context.Context, batch *model.Batch) error
}

// Worker couples a queue set with per-signal processor chains and drives
// records from one to the other.
type Worker struct {
	id            string
	queues        *queue.Set
	chains        map[model.Signal]*processor.Chain
	exporter      Exporter
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	flushInterval time.Duration

	draining atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a worker. chains must contain one chain per signal type;
// flushInterval is the granularity at which age-based batch sealing is
// checked.
func New(id string, queues *queue.Set, chains map[model.Signal]*processor.Chain, exp Exporter, logger *zap.Logger, metrics *telemetry.Metrics, flushInterval time.Duration) *Worker {
	return &Worker{
		id:            id,
		queues:        queues,
		chains:        chains,
		exporter:      exp,
		logger:        logger.With(zap.String("worker", id)),
		metrics:       metrics,
		flushInterval: flushInterval,
	}
}

// ID returns the worker's identity.
func (w *Worker) ID() string {
	return w.id
}

// Start launches one consuming goroutine per signal type.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	for _, sig := range model.Signals {
		w.wg.Add(1)
		go w.run(ctx, sig)
	}
	w.logger.Info("worker started")
}

func (w *Worker) run(ctx context.Context, sig model.Signal) {
	defer w.wg.Done()
	chain := w.chains[sig]
	q := w.queues.For(sig)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, batch := range chain.SealExpired(now) {
				w.export(ctx, batch)
			}
		case rec := <-q.C():
			if batch := chain.Process(rec); batch != nil {
				w.export(ctx, batch)
			}
		}
	}
}

func (w *Worker) export(ctx context.Context, batch *model.Batch) {
	if err := w.exporter.Export(ctx, batch); err != nil {
		w.logger.Debug("export finished with errors", zap.Error(err))
	}
}

// Enqueue routes one record into the worker's queue for its signal type,
// waiting up to the context deadline when the queue is full. A draining
// worker refuses new records.
func (w *Worker) Enqueue(ctx context.Context, rec model.Record) error {
	if w.draining.Load() {
		return model.ErrDraining
	}
	return w.queues.Enqueue(ctx, rec)
}

// TryEnqueue is Enqueue without the bounded wait.
func (w *Worker) TryEnqueue(rec model.Record) error {
	if w.draining.Load() {
		return model.ErrDraining
	}
	return w.queues.For(rec.Signal).TryEnqueue(rec)
}

// Depth returns the buffered record count for one signal type.
func (w *Worker) Depth(sig model.Signal) int {
	return w.queues.For(sig).Depth()
}

// TotalDepth returns the buffered record count across all signals.
func (w *Worker) TotalDepth() int {
	return w.queues.Depth()
}

// DepthBySignal returns the buffered record count per signal type.
func (w *Worker) DepthBySignal() map[model.Signal]int {
	return w.queues.DepthBySignal()
}

// Capacity returns the total queue capacity across signals.
func (w *Worker) Capacity() int {
	return w.queues.Capacity()
}

// BeginDrain stops the worker from accepting new records. The consuming
// goroutines keep running so in-flight records complete.
func (w *Worker) BeginDrain() {
	if w.draining.CompareAndSwap(false, true) {
		w.logger.Info("worker draining")
	}
}

// Draining reports whether the worker has begun draining.
func (w *Worker) Draining() bool {
	return w.draining.Load()
}

// Drain waits for the worker's queues to empty, up to the context
// deadline. Callers must have called BeginDrain first.
func (w *Worker) Drain(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if w.queues.Empty() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Stop halts the consuming goroutines, drops whatever the drain left in
// the queues (counted per signal), then seals all open batches and makes
// one final export pass bounded by ctx.
func (w *Worker) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	for _, sig := range model.Signals {
		q := w.queues.For(sig)
		dropped := 0
		for {
			if _, ok := q.TryDequeue(); !ok {
				break
			}
			dropped++
		}
		if dropped > 0 {
			w.metrics.DroppedRecords.WithLabelValues(sig.String(), "drain").Add(float64(dropped))
			w.logger.Warn("drain timeout dropped records",
				zap.String("signal", sig.String()), zap.Int("records", dropped))
		}
	}

	for _, sig := range model.Signals {
		for _, batch := range w.chains[sig].Flush() {
			w.export(ctx, batch)
		}
	}
	w.logger.Info("worker stopped")
}
