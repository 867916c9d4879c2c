// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package exporter // import "github.com/telepipe/telepipe/internal/exporter"

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/telemetry"
)

// Router fans each sealed batch out to every target with a matching
// signal affinity. Deliveries to distinct targets run independently; a
// failure on one target never blocks or rolls back another.
type Router struct {
	targets []*Target
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	attempts atomic.Int64
	failures atomic.Int64
}

// NewRouter builds a router over a fixed set of targets.
func NewRouter(targets []*Target, logger *zap.Logger, metrics *telemetry.Metrics) *Router {
	r := &Router{
		targets: targets,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	for _, t := range targets {
		metrics.TargetHealthy.WithLabelValues(t.name).Set(1)
	}
	return r
}

// Export delivers one sealed batch to all affine targets and waits for
// every delivery to resolve. The returned error aggregates per-target
// failures for logging; drops have already been counted.
func (r *Router) Export(ctx context.Context, batch *model.Batch) error {
	var affine []*Target
	for _, t := range r.targets {
		if t.signal == batch.Signal() {
			affine = append(affine, t)
		}
	}
	if len(affine) == 0 {
		r.metrics.DroppedRecords.WithLabelValues(batch.Signal().String(), "route").Add(float64(batch.Len()))
		return nil
	}

	errs := make([]error, len(affine))
	var wg sync.WaitGroup
	for i, t := range affine {
		wg.Add(1)
		go func(i int, t *Target) {
			defer wg.Done()
			errs[i] = r.deliver(ctx, t, batch)
		}(i, t)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// Stats returns the cumulative delivery attempt and failure counts. The
// capacity controller derives its exporter error rate from deltas of
// these counters.
func (r *Router) Stats() (attempts, failures int64) {
	return r.attempts.Load(), r.failures.Load()
}

// TargetStates returns the current health state per target name.
func (r *Router) TargetStates() map[string]HealthState {
	states := make(map[string]HealthState, len(r.targets))
	for _, t := range r.targets {
		states[t.name] = t.State()
	}
	return states
}

func (r *Router) deliver(ctx context.Context, t *Target, batch *model.Batch) error {
	admitted, probe := t.admit(r.now())
	if !admitted {
		r.drop(t, batch, "degraded")
		return nil
	}

	attempt := func() error {
		r.attempts.Add(1)
		err := t.sink.Deliver(ctx, batch)
		if err == nil {
			if t.recordSuccess() {
				r.metrics.TargetHealthy.WithLabelValues(t.name).Set(1)
				r.logger.Info("export target recovered", zap.String("target", t.name))
			}
			return nil
		}
		r.failures.Add(1)
		r.metrics.RetriedAttempts.WithLabelValues(t.name).Inc()
		if t.recordFailure(r.now()) {
			r.metrics.TargetHealthy.WithLabelValues(t.name).Set(0)
			r.logger.Warn("export target degraded",
				zap.String("target", t.name), zap.Error(err))
		}
		return err
	}

	var err error
	if probe {
		// A degraded target gets a single probe attempt, no retry
		// schedule, so a dead sink costs one round-trip per interval.
		err = attempt()
	} else {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = t.retry.InitialInterval
		policy.MaxInterval = t.retry.MaxInterval
		policy.MaxElapsedTime = t.retry.MaxElapsedTime
		err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, t.retry.MaxRetries), ctx))
	}
	if err != nil {
		reason := "retry_exhausted"
		if probe {
			reason = "probe_failed"
		}
		r.drop(t, batch, reason)
		return err
	}
	r.metrics.ExportedRecords.WithLabelValues(batch.Signal().String(), t.name).Add(float64(batch.Len()))
	return nil
}

func (r *Router) drop(t *Target, batch *model.Batch, reason string) {
	r.metrics.DroppedBatches.WithLabelValues(t.name, reason).Inc()
	r.metrics.DroppedRecords.WithLabelValues(batch.Signal().String(), "export").Add(float64(batch.Len()))
	r.logger.Warn("batch dropped",
		zap.String("target", t.name),
		zap.String("reason", reason),
		zap.String("signal", batch.Signal().String()),
		zap.Int("records", batch.Len()))
}
