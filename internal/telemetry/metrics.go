// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the pipeline's own counters for external
// scraping: received, exported, dropped and retried records per signal
// type, queue depths, target health and the current worker count.
package telemetry // import "github.com/telepipe/telepipe/internal/telemetry"

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the pipeline reports about itself.
// Components receive the struct at construction; there is no process-wide
// default registry.
type Metrics struct {
	ReceivedRecords *prometheus.CounterVec
	ReceivedBytes   *prometheus.CounterVec
	RefusedRecords  *prometheus.CounterVec
	DroppedRecords  *prometheus.CounterVec
	ExportedRecords *prometheus.CounterVec
	DroppedBatches  *prometheus.CounterVec
	RetriedAttempts *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	WorkerCount     prometheus.Gauge
	TargetHealthy   *prometheus.GaugeVec
}

// NewMetrics registers all pipeline instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceivedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_received_records_total",
			Help: "Records accepted by the wire receivers.",
		}, []string{"signal"}),
		ReceivedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_received_bytes_total",
			Help: "Payload bytes accepted by the wire receivers.",
		}, []string{"signal"}),
		RefusedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_refused_records_total",
			Help: "Records refused at the receiver, by reason.",
		}, []string{"signal", "reason"}),
		DroppedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_dropped_records_total",
			Help: "Records dropped inside the pipeline, by stage.",
		}, []string{"signal", "stage"}),
		ExportedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_exported_records_total",
			Help: "Records delivered to an export target.",
		}, []string{"signal", "target"}),
		DroppedBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_dropped_batches_total",
			Help: "Batches dropped after retry exhaustion or while a target is degraded.",
		}, []string{"target", "reason"}),
		RetriedAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telepipe_retried_attempts_total",
			Help: "Failed delivery attempts that were scheduled for retry.",
		}, []string{"target"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telepipe_queue_depth",
			Help: "Aggregate ingestion queue depth across workers.",
		}, []string{"signal"}),
		WorkerCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telepipe_workers",
			Help: "Current number of active workers.",
		}),
		TargetHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telepipe_target_healthy",
			Help: "1 while the export target is healthy, 0 while degraded.",
		}, []string{"target"}),
	}
}
