// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles the pipeline from configuration and owns its
// lifecycle: startup to the minimum worker count, steady-state operation
// under the capacity controller, and ordered shutdown within a bounded
// deadline.
package service // import "github.com/telepipe/telepipe/internal/service"

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/config"
	"github.com/telepipe/telepipe/internal/controller"
	"github.com/telepipe/telepipe/internal/distributor"
	"github.com/telepipe/telepipe/internal/exporter"
	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/receiver"
	"github.com/telepipe/telepipe/internal/telemetry"
	"github.com/telepipe/telepipe/internal/worker"
)

// Fallbacks for per-exporter settings the document may omit.
const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMaxRetries      = 5
	defaultMaxElapsedTime  = 5 * time.Minute
	defaultFailThreshold   = 5
	defaultProbeInterval   = 30 * time.Second
)

// Service is the assembled pipeline.
type Service struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics

	router *exporter.Router
	set    *worker.Set
	ctrl   *controller.Controller
	recv   *receiver.Receiver
	telsrv *telemetry.Server
	prov   *localProvisioner
}

// New builds every component from a validated configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	targets := make([]*exporter.Target, 0, len(cfg.Exporters))
	for _, e := range cfg.Exporters {
		sig, err := model.ParseSignal(e.Signal)
		if err != nil {
			return nil, fmt.Errorf("exporter %q: %w", e.Name, err)
		}
		sink := exporter.NewOTLPHTTPSink(e.Endpoint, durationOr(e.Timeout, defaultDeliveryTimeout))
		targets = append(targets, exporter.NewTarget(
			e.Name, sig, sink,
			retryPolicy(e.Retry),
			intOr(e.Health.ConsecutiveFailures, defaultFailThreshold),
			durationOr(e.Health.ProbeInterval, defaultProbeInterval),
		))
	}
	router := exporter.NewRouter(targets, logger.Named("exporter"), metrics)

	set := worker.NewSet()
	prov := newLocalProvisioner(cfg, router, logger.Named("worker"), metrics)
	dist := distributor.New(set)

	ctrl := controller.New(controller.Config{
		MinWorkers:       cfg.Controller.MinWorkers,
		MaxWorkers:       cfg.Controller.MaxWorkers,
		EvaluateInterval: cfg.Controller.EvaluateInterval.AsDuration(),
		Cooldown:         cfg.Controller.Cooldown.AsDuration(),
		DrainTimeout:     cfg.Controller.DrainTimeout.AsDuration(),
		HighWatermark:    cfg.Controller.HighWatermark,
		LowWatermark:     cfg.Controller.LowWatermark,
		Sustain:          cfg.Controller.Sustain,
		SmoothingAlpha:   cfg.Controller.SmoothingAlpha,
		MemoryBudgetMiB:  cfg.Controller.MemoryBudgetMiB,
	}, set, prov, router, logger.Named("controller"), metrics)

	recv := receiver.New(receiver.Settings{
		GRPCEndpoint:   cfg.Receivers.GRPC.Endpoint,
		HTTPEndpoint:   cfg.Receivers.HTTP.Endpoint,
		EnqueueTimeout: cfg.Receivers.GRPC.EnqueueTimeout.AsDuration(),
		MaxBodyBytes:   cfg.Receivers.HTTP.MaxBodyBytes,
	}, dist, logger.Named("receiver"), metrics)

	return &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		router:  router,
		set:     set,
		ctrl:    ctrl,
		recv:    recv,
		telsrv:  telemetry.NewServer(cfg.Telemetry.Endpoint, reg, logger.Named("telemetry")),
		prov:    prov,
	}, nil
}

// Receiver exposes the receiver, mainly so embedders and tests can learn
// the bound addresses.
func (s *Service) Receiver() *receiver.Receiver {
	return s.recv
}

// Run starts the pipeline and blocks until ctx is done, then shuts down
// within the configured deadline.
func (s *Service) Run(ctx context.Context) error {
	for i := 0; i < s.cfg.Controller.MinWorkers; i++ {
		w, err := s.prov.ScaleOut(ctx)
		if err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		s.set.Add(w)
	}
	s.metrics.WorkerCount.Set(float64(s.set.Len()))

	if err := s.telsrv.Start(); err != nil {
		return fmt.Errorf("start telemetry server: %w", err)
	}
	if err := s.recv.Start(); err != nil {
		return fmt.Errorf("start receivers: %w", err)
	}
	go s.ctrl.Run(ctx)

	s.logger.Info("pipeline running", zap.Int("workers", s.set.Len()))
	<-ctx.Done()
	return s.shutdown()
}

// shutdown stops accepting payloads, drains every worker, force-flushes
// open batches and makes one final delivery pass, all within the
// shutdown deadline. Whatever cannot be delivered in time is dropped and
// counted.
func (s *Service) shutdown() error {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.AsDuration())
	defer cancel()

	var errs error
	errs = multierr.Append(errs, s.recv.Shutdown(ctx))

	workers := s.set.Snapshot()
	for _, w := range workers {
		w.BeginDrain()
	}
	for _, w := range workers {
		if err := w.Drain(ctx); err != nil {
			s.logger.Warn("worker drain interrupted", zap.String("worker", w.ID()), zap.Error(err))
		}
		s.set.Remove(w.ID())
		w.Stop(ctx)
	}
	errs = multierr.Append(errs, s.telsrv.Shutdown(ctx))
	s.logger.Info("shutdown complete")
	return errs
}

func retryPolicy(r config.RetryConfig) exporter.RetryPolicy {
	maxRetries := uint64(defaultMaxRetries)
	if r.MaxRetries > 0 {
		maxRetries = uint64(r.MaxRetries)
	}
	return exporter.RetryPolicy{
		InitialInterval: durationOr(r.InitialInterval, defaultInitialInterval),
		MaxInterval:     durationOr(r.MaxInterval, defaultMaxInterval),
		MaxRetries:      maxRetries,
		MaxElapsedTime:  durationOr(r.MaxElapsedTime, defaultMaxElapsedTime),
	}
}

func durationOr(d config.Duration, fallback time.Duration) time.Duration {
	if d > 0 {
		return d.AsDuration()
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
