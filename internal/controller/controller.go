// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the capacity controller: a state machine
// that samples pipeline-native load signals every evaluation interval and
// resizes the worker set through an external provisioning interface, with
// hysteresis so a single spike never causes flapping.
package controller // import "github.com/telepipe/telepipe/internal/controller"

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/telemetry"
	"github.com/telepipe/telepipe/internal/worker"
)

// Provisioner is the external worker-provisioning capability the
// controller consumes. How a worker is physically hosted is the
// provisioner's concern; the controller only sees handles.
type Provisioner interface {
	// ScaleOut provisions and starts one additional worker.
	ScaleOut(ctx context.Context) (*worker.Worker, error)
	// ScaleDown releases a worker's resources. The controller calls it
	// only after the worker has drained and been deregistered.
	ScaleDown(ctx context.Context, w *worker.Worker) error
}

// DeliveryStats supplies cumulative exporter attempt/failure counts; the
// controller turns deltas between evaluations into an error rate.
type DeliveryStats interface {
	Stats() (attempts, failures int64)
}

// State is the controller's position in its scaling state machine.
type State int

const (
	StateStable State = iota
	StateScalingUp
	StateScalingDown
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateScalingUp:
		return "scaling_up"
	case StateScalingDown:
		return "scaling_down"
	case StateCooldown:
		return "cooldown"
	}
	return "stable"
}

// Config holds the controller thresholds.
type Config struct {
	MinWorkers       int
	MaxWorkers       int
	EvaluateInterval time.Duration
	Cooldown         time.Duration
	DrainTimeout     time.Duration
	// HighWatermark and LowWatermark are ratios in [0,1] compared
	// against the smoothed queue-depth ratio and the memory proxy.
	HighWatermark float64
	LowWatermark  float64
	// Sustain is the number of consecutive low evaluations required
	// before scaling down.
	Sustain         int
	SmoothingAlpha  float64
	MemoryBudgetMiB int
}

// LoadSample is one point-in-time measurement of pipeline load. It is
// consumed immediately and never persisted.
type LoadSample struct {
	QueueDepth  map[model.Signal]int
	QueueRatio  float64
	ErrorRate   float64
	MemoryRatio float64
}

// Controller drives the worker set size from observed load.
type Controller struct {
	cfg     Config
	set     *worker.Set
	prov    Provisioner
	stats   DeliveryStats
	logger  *zap.Logger
	metrics *telemetry.Metrics

	state         State
	cooldownUntil time.Time
	lowStreak     int
	depthEWMA     *ewma
	errEWMA       *ewma
	lastAttempts  int64
	lastFailures  int64

	readMemory func() float64
}

// New builds a controller. It does not start workers; the service brings
// the set up to MinWorkers before Run.
func New(cfg Config, set *worker.Set, prov Provisioner, stats DeliveryStats, logger *zap.Logger, metrics *telemetry.Metrics) *Controller {
	c := &Controller{
		cfg:       cfg,
		set:       set,
		prov:      prov,
		stats:     stats,
		logger:    logger,
		metrics:   metrics,
		state:     StateStable,
		depthEWMA: newEWMA(cfg.SmoothingAlpha),
		errEWMA:   newEWMA(cfg.SmoothingAlpha),
	}
	c.readMemory = c.heapRatio
	return c
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return c.state
}

// Run evaluates load every EvaluateInterval until ctx is done. It is the
// single writer of the worker set.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.EvaluateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.evaluate(ctx, now)
		}
	}
}

// evaluate performs one sampling and scaling decision.
func (c *Controller) evaluate(ctx context.Context, now time.Time) {
	sample := c.sample()
	c.publish(sample)

	depth := c.depthEWMA.update(sample.QueueRatio)
	errRate := c.errEWMA.update(sample.ErrorRate)

	if c.state == StateCooldown {
		if now.Before(c.cooldownUntil) {
			return
		}
		c.state = StateStable
		c.logger.Debug("cooldown elapsed")
	}

	load := depth
	if sample.MemoryRatio > load {
		load = sample.MemoryRatio
	}

	switch {
	case load > c.cfg.HighWatermark:
		c.lowStreak = 0
		c.scaleOut(ctx, now, load, errRate)
	case depth < c.cfg.LowWatermark && sample.MemoryRatio < c.cfg.LowWatermark:
		c.lowStreak++
		if c.lowStreak >= c.cfg.Sustain {
			c.lowStreak = 0
			c.scaleDown(ctx, now)
		}
	default:
		c.lowStreak = 0
	}
}

func (c *Controller) scaleOut(ctx context.Context, now time.Time, load, errRate float64) {
	if c.set.Len() >= c.cfg.MaxWorkers {
		return
	}
	c.state = StateScalingUp
	c.logger.Info("scaling out",
		zap.Float64("load", load),
		zap.Float64("error_rate", errRate),
		zap.Int("workers", c.set.Len()))
	w, err := c.prov.ScaleOut(ctx)
	if err != nil {
		// Provisioning failure is never fatal; retry next evaluation.
		c.logger.Error("scale-out request failed", zap.Error(err))
		c.state = StateStable
		return
	}
	c.set.Add(w)
	c.metrics.WorkerCount.Set(float64(c.set.Len()))
	c.enterCooldown(now)
}

func (c *Controller) scaleDown(ctx context.Context, now time.Time) {
	if c.set.Len() <= c.cfg.MinWorkers {
		return
	}
	victim := c.pickVictim()
	if victim == nil {
		return
	}
	c.state = StateScalingDown
	c.logger.Info("scaling down", zap.String("worker", victim.ID()), zap.Int("workers", c.set.Len()))

	victim.BeginDrain()
	drainCtx, cancel := context.WithTimeout(ctx, c.cfg.DrainTimeout)
	defer cancel()
	if err := victim.Drain(drainCtx); err != nil {
		c.logger.Warn("worker drain timed out, dropping remainder",
			zap.String("worker", victim.ID()), zap.Error(err))
	}
	c.set.Remove(victim.ID())
	victim.Stop(drainCtx)
	if err := c.prov.ScaleDown(ctx, victim); err != nil {
		c.logger.Error("scale-down request failed", zap.String("worker", victim.ID()), zap.Error(err))
	}
	c.metrics.WorkerCount.Set(float64(c.set.Len()))
	c.enterCooldown(now)
}

// pickVictim chooses the non-draining worker with the least buffered
// work.
func (c *Controller) pickVictim() *worker.Worker {
	var victim *worker.Worker
	depth := 0
	for _, w := range c.set.Snapshot() {
		if w.Draining() {
			continue
		}
		d := w.TotalDepth()
		if victim == nil || d < depth {
			victim, depth = w, d
		}
	}
	return victim
}

func (c *Controller) enterCooldown(now time.Time) {
	c.state = StateCooldown
	c.cooldownUntil = now.Add(c.cfg.Cooldown)
}

// sample aggregates queue depth, exporter error rate and the memory
// proxy across all active workers.
func (c *Controller) sample() LoadSample {
	depths := make(map[model.Signal]int, len(model.Signals))
	totalDepth, totalCapacity := 0, 0
	for _, w := range c.set.Snapshot() {
		for sig, d := range w.DepthBySignal() {
			depths[sig] += d
			totalDepth += d
		}
		totalCapacity += w.Capacity()
	}
	ratio := 0.0
	if totalCapacity > 0 {
		ratio = float64(totalDepth) / float64(totalCapacity)
	}

	attempts, failures := c.stats.Stats()
	dAttempts := attempts - c.lastAttempts
	dFailures := failures - c.lastFailures
	c.lastAttempts, c.lastFailures = attempts, failures
	errRate := 0.0
	if dAttempts > 0 {
		errRate = float64(dFailures) / float64(dAttempts)
	}

	return LoadSample{
		QueueDepth:  depths,
		QueueRatio:  ratio,
		ErrorRate:   errRate,
		MemoryRatio: c.readMemory(),
	}
}

func (c *Controller) publish(sample LoadSample) {
	for sig, d := range sample.QueueDepth {
		c.metrics.QueueDepth.WithLabelValues(sig.String()).Set(float64(d))
	}
	c.metrics.WorkerCount.Set(float64(c.set.Len()))
}

// heapRatio is the CPU/memory proxy: live heap against the configured
// budget.
func (c *Controller) heapRatio() float64 {
	if c.cfg.MemoryBudgetMiB <= 0 {
		return 0
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapInuse) / (float64(c.cfg.MemoryBudgetMiB) * 1024 * 1024)
}
