// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/processor"
	"github.com/telepipe/telepipe/internal/queue"
	"github.com/telepipe/telepipe/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureExporter struct {
	mu      sync.Mutex
	batches []*model.Batch
}

func (e *captureExporter) Export(_ context.Context, b *model.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, b)
	return nil
}

func (e *captureExporter) records() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, b := range e.batches {
		n += b.Len()
	}
	return n
}

func newTestWorker(t *testing.T, exp Exporter, batchSize int, batchAge time.Duration) *Worker {
	t.Helper()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	chains := make(map[model.Signal]*processor.Chain, len(model.Signals))
	for _, sig := range model.Signals {
		chains[sig] = processor.NewChain(nil, processor.NewBatcher(batchSize, batchAge), zap.NewNop(), metrics)
	}
	return New("w-test", queue.NewSet(64), chains, exp, zap.NewNop(), metrics, 5*time.Millisecond)
}

func logRec(body string) model.Record {
	return model.Record{
		Signal:   model.SignalLogs,
		Resource: model.EmptyResource,
		Log:      &model.LogEntry{Body: body},
	}
}

func TestWorkerProcessesAndExports(t *testing.T) {
	exp := &captureExporter{}
	w := newTestWorker(t, exp, 2, time.Minute)
	w.Start()
	defer w.Stop(context.Background())

	require.NoError(t, w.TryEnqueue(logRec("a")))
	require.NoError(t, w.TryEnqueue(logRec("b")))

	require.Eventually(t, func() bool { return exp.records() == 2 },
		time.Second, 5*time.Millisecond)
	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.batches, 1)
	assert.Equal(t, model.SealSize, exp.batches[0].Reason())
}

func TestWorkerAgeSealExports(t *testing.T) {
	exp := &captureExporter{}
	w := newTestWorker(t, exp, 100, 20*time.Millisecond)
	w.Start()
	defer w.Stop(context.Background())

	require.NoError(t, w.TryEnqueue(logRec("a")))

	require.Eventually(t, func() bool { return exp.records() == 1 },
		time.Second, 5*time.Millisecond)
	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, model.SealAge, exp.batches[0].Reason())
}

func TestWorkerDrainRefusesNewRecords(t *testing.T) {
	exp := &captureExporter{}
	w := newTestWorker(t, exp, 100, time.Minute)
	w.Start()
	defer w.Stop(context.Background())

	require.NoError(t, w.TryEnqueue(logRec("a")))
	w.BeginDrain()
	assert.True(t, w.Draining())

	assert.ErrorIs(t, w.TryEnqueue(logRec("b")), model.ErrDraining)
	assert.ErrorIs(t, w.Enqueue(context.Background(), logRec("b")), model.ErrDraining)

	require.NoError(t, w.Drain(context.Background()))
	assert.Zero(t, w.TotalDepth())
}

func TestWorkerDrainTimesOut(t *testing.T) {
	exp := &captureExporter{}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	chains := make(map[model.Signal]*processor.Chain, len(model.Signals))
	for _, sig := range model.Signals {
		chains[sig] = processor.NewChain(nil, processor.NewBatcher(100, time.Minute), zap.NewNop(), metrics)
	}
	// Never started, so nothing consumes the queue.
	w := New("w-stuck", queue.NewSet(8), chains, exp, zap.NewNop(), metrics, time.Millisecond)

	require.NoError(t, w.TryEnqueue(logRec("a")))
	require.NoError(t, w.TryEnqueue(logRec("b")))
	w.BeginDrain()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Drain(ctx), context.DeadlineExceeded)

	w.Stop(context.Background())
	dropped := testutil.ToFloat64(metrics.DroppedRecords.WithLabelValues("logs", "drain"))
	assert.Equal(t, 2.0, dropped)
}

func TestWorkerStopFlushesOpenBatches(t *testing.T) {
	exp := &captureExporter{}
	w := newTestWorker(t, exp, 100, time.Minute)
	w.Start()

	require.NoError(t, w.TryEnqueue(logRec("a")))
	w.BeginDrain()
	require.NoError(t, w.Drain(context.Background()))
	w.Stop(context.Background())

	require.Equal(t, 1, exp.records())
	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, model.SealFlush, exp.batches[0].Reason())
}

func TestWorkerDepthAccounting(t *testing.T) {
	exp := &captureExporter{}
	w := newTestWorker(t, exp, 100, time.Minute)
	// Not started; records stay buffered.

	require.NoError(t, w.TryEnqueue(logRec("a")))
	require.NoError(t, w.TryEnqueue(model.Record{
		Signal:   model.SignalTraces,
		Resource: model.EmptyResource,
		Span:     &model.Span{Name: "op"},
	}))

	assert.Equal(t, 2, w.TotalDepth())
	assert.Equal(t, 1, w.Depth(model.SignalLogs))
	assert.Equal(t, 1, w.Depth(model.SignalTraces))
	assert.Equal(t, 0, w.Depth(model.SignalMetrics))
	assert.Equal(t, 3*64, w.Capacity())

	w.Stop(context.Background())
}

func TestSetMembership(t *testing.T) {
	s := NewSet()
	assert.Zero(t, s.Len())

	exp := &captureExporter{}
	a := newTestWorker(t, exp, 10, time.Minute)
	s.Add(a)
	assert.Equal(t, 1, s.Len())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Same(t, a, snap[0])

	// Removing mutates later snapshots, not the one already taken.
	removed := s.Remove(a.ID())
	assert.Same(t, a, removed)
	assert.Zero(t, s.Len())
	assert.Len(t, snap, 1)

	assert.Nil(t, s.Remove("unknown"))
}
