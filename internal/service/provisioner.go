// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package service // import "github.com/telepipe/telepipe/internal/service"

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/config"
	"github.com/telepipe/telepipe/internal/exporter"
	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/processor"
	"github.com/telepipe/telepipe/internal/queue"
	"github.com/telepipe/telepipe/internal/telemetry"
	"github.com/telepipe/telepipe/internal/worker"
)

// localProvisioner implements the controller's provisioning interface by
// hosting workers as goroutine groups inside this process. A deployment
// that hosts workers elsewhere swaps this type out; the controller never
// knows the difference.
type localProvisioner struct {
	cfg        *config.Config
	router     *exporter.Router
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	instanceID string
}

func newLocalProvisioner(cfg *config.Config, router *exporter.Router, logger *zap.Logger, metrics *telemetry.Metrics) *localProvisioner {
	return &localProvisioner{
		cfg:        cfg,
		router:     router,
		logger:     logger,
		metrics:    metrics,
		instanceID: uuid.NewString(),
	}
}

// ScaleOut builds and starts one worker with its own queue set and
// per-signal processor chains.
func (p *localProvisioner) ScaleOut(_ context.Context) (*worker.Worker, error) {
	actions := make([]processor.Action, 0, len(p.cfg.Processors.Transform.Actions))
	for _, a := range p.cfg.Processors.Transform.Actions {
		actions = append(actions, a.ToAction())
	}
	batchTimeout := p.cfg.Processors.Batch.Timeout.AsDuration()

	chains := make(map[model.Signal]*processor.Chain, len(model.Signals))
	for _, sig := range model.Signals {
		stages := []processor.Stage{
			processor.NewEnrichStage(p.instanceID, p.cfg.Processors.Enrich.Attributes),
			processor.NewTransformStage(actions),
		}
		batcher := processor.NewBatcher(p.cfg.Processors.Batch.SendBatchSize, batchTimeout)
		chains[sig] = processor.NewChain(stages, batcher, p.logger, p.metrics)
	}

	w := worker.New(
		uuid.NewString(),
		queue.NewSet(p.cfg.Queue.Capacity),
		chains,
		p.router,
		p.logger,
		p.metrics,
		flushInterval(batchTimeout),
	)
	w.Start()
	return w, nil
}

// ScaleDown releases a worker's resources. In-process workers hold
// nothing beyond what Stop already released.
func (p *localProvisioner) ScaleDown(_ context.Context, w *worker.Worker) error {
	p.logger.Info("worker released", zap.String("worker", w.ID()))
	return nil
}

// flushInterval derives the age-check granularity from the batch
// timeout so short timeouts stay accurate without a hot loop.
func flushInterval(batchTimeout time.Duration) time.Duration {
	interval := batchTimeout / 10
	if interval < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	if interval > time.Second {
		return time.Second
	}
	return interval
}
