// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package exporter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/telemetry"
)

var testRetry = RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxRetries:      3,
	MaxElapsedTime:  time.Second,
}

func sealedBatch(sig model.Signal, n int) *model.Batch {
	b := model.NewBatch(sig, model.EmptyResource)
	for i := 0; i < n; i++ {
		rec := model.Record{Signal: sig, Resource: model.EmptyResource}
		switch sig {
		case model.SignalTraces:
			rec.Span = &model.Span{Name: "op"}
		case model.SignalMetrics:
			rec.Metric = &model.MetricPoint{Name: "m"}
		case model.SignalLogs:
			rec.Log = &model.LogEntry{Body: "x"}
		}
		_ = b.Append(rec, time.Now())
	}
	b.Seal(model.SealFlush)
	return b
}

func TestRouterDeliversToAffineTargetsOnly(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	var traceCalls, logCalls atomic.Int64
	traceTarget := NewTarget("trace-store", model.SignalTraces, SinkFunc(func(context.Context, *model.Batch) error {
		traceCalls.Add(1)
		return nil
	}), testRetry, 5, time.Minute)
	logTarget := NewTarget("log-store", model.SignalLogs, SinkFunc(func(context.Context, *model.Batch) error {
		logCalls.Add(1)
		return nil
	}), testRetry, 5, time.Minute)
	r := NewRouter([]*Target{traceTarget, logTarget}, zap.NewNop(), metrics)

	require.NoError(t, r.Export(context.Background(), sealedBatch(model.SignalTraces, 3)))

	assert.Equal(t, int64(1), traceCalls.Load())
	assert.Zero(t, logCalls.Load())
	exported := testutil.ToFloat64(metrics.ExportedRecords.WithLabelValues("traces", "trace-store"))
	assert.Equal(t, 3.0, exported)
}

func TestRouterRetryExhaustionDropsOnce(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	var calls atomic.Int64
	target := NewTarget("trace-store", model.SignalTraces, SinkFunc(func(context.Context, *model.Batch) error {
		calls.Add(1)
		return errors.New("sink unreachable")
	}), testRetry, 4, time.Minute)
	r := NewRouter([]*Target{target}, zap.NewNop(), metrics)

	err := r.Export(context.Background(), sealedBatch(model.SignalTraces, 2))
	assert.Error(t, err)

	// MaxRetries 3 means 4 attempts, exactly one dropped-batch count.
	assert.Equal(t, int64(4), calls.Load())
	dropped := testutil.ToFloat64(metrics.DroppedBatches.WithLabelValues("trace-store", "retry_exhausted"))
	assert.Equal(t, 1.0, dropped)
	assert.Equal(t, HealthDegraded, target.State(), "threshold reached during the retry run")

	attempts, failures := r.Stats()
	assert.Equal(t, int64(4), attempts)
	assert.Equal(t, int64(4), failures)
}

func TestRouterDegradedTargetProbes(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	var calls atomic.Int64
	fail := atomic.Bool{}
	fail.Store(true)
	target := NewTarget("log-store", model.SignalLogs, SinkFunc(func(context.Context, *model.Batch) error {
		calls.Add(1)
		if fail.Load() {
			return errors.New("sink unreachable")
		}
		return nil
	}), testRetry, 2, 50*time.Millisecond)
	r := NewRouter([]*Target{target}, zap.NewNop(), metrics)

	// Degrade the target.
	require.Error(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 1)))
	require.Equal(t, HealthDegraded, target.State())
	callsAfterDegrade := calls.Load()

	// Within the probe interval the batch is dropped without touching
	// the sink.
	require.NoError(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 1)))
	assert.Equal(t, callsAfterDegrade, calls.Load())
	dropped := testutil.ToFloat64(metrics.DroppedBatches.WithLabelValues("log-store", "degraded"))
	assert.Equal(t, 1.0, dropped)

	// After the interval one probe goes through; success restores the
	// target.
	fail.Store(false)
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 1)))
	assert.Equal(t, callsAfterDegrade+1, calls.Load())
	assert.Equal(t, HealthHealthy, target.State())
}

func TestRouterFailedProbeCountedDistinctly(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	target := NewTarget("log-store", model.SignalLogs, SinkFunc(func(context.Context, *model.Batch) error {
		return errors.New("sink unreachable")
	}), testRetry, 2, 30*time.Millisecond)
	r := NewRouter([]*Target{target}, zap.NewNop(), metrics)

	require.Error(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 1)))
	require.Equal(t, HealthDegraded, target.State())

	time.Sleep(40 * time.Millisecond)
	require.Error(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 1)))

	exhausted := testutil.ToFloat64(metrics.DroppedBatches.WithLabelValues("log-store", "retry_exhausted"))
	assert.Equal(t, 1.0, exhausted, "only the retried delivery counts as exhaustion")
	probeFailed := testutil.ToFloat64(metrics.DroppedBatches.WithLabelValues("log-store", "probe_failed"))
	assert.Equal(t, 1.0, probeFailed)
	assert.Equal(t, HealthDegraded, target.State())
}

func TestRouterTargetsAreIndependent(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	var okCalls atomic.Int64
	failing := NewTarget("primary", model.SignalMetrics, SinkFunc(func(context.Context, *model.Batch) error {
		return errors.New("down")
	}), testRetry, 10, time.Minute)
	healthy := NewTarget("secondary", model.SignalMetrics, SinkFunc(func(context.Context, *model.Batch) error {
		okCalls.Add(1)
		return nil
	}), testRetry, 10, time.Minute)
	r := NewRouter([]*Target{failing, healthy}, zap.NewNop(), metrics)

	err := r.Export(context.Background(), sealedBatch(model.SignalMetrics, 1))
	assert.Error(t, err, "the failing target surfaces its error")
	assert.Equal(t, int64(1), okCalls.Load(), "the healthy target still delivered")
}

func TestRouterNoAffineTargetCountsDrop(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	target := NewTarget("trace-store", model.SignalTraces, SinkFunc(func(context.Context, *model.Batch) error {
		return nil
	}), testRetry, 5, time.Minute)
	r := NewRouter([]*Target{target}, zap.NewNop(), metrics)

	require.NoError(t, r.Export(context.Background(), sealedBatch(model.SignalLogs, 4)))
	dropped := testutil.ToFloat64(metrics.DroppedRecords.WithLabelValues("logs", "route"))
	assert.Equal(t, 4.0, dropped)
}

func TestRouterPermanentErrorSkipsRetry(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	var calls atomic.Int64
	target := NewTarget("trace-store", model.SignalTraces, SinkFunc(func(context.Context, *model.Batch) error {
		calls.Add(1)
		return backoff.Permanent(errors.New("payload rejected"))
	}), testRetry, 10, time.Minute)
	r := NewRouter([]*Target{target}, zap.NewNop(), metrics)

	require.Error(t, r.Export(context.Background(), sealedBatch(model.SignalTraces, 1)))
	assert.Equal(t, int64(1), calls.Load())
}
