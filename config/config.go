// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the declarative pipeline configuration:
// receivers, processors, exporters and controller thresholds. Unknown
// keys are rejected at load time, and an invalid document prevents
// startup entirely.
package config // import "github.com/telepipe/telepipe/config"

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/processor"
)

// Config is the root of the configuration document.
type Config struct {
	Receivers       ReceiversConfig  `yaml:"receivers"`
	Queue           QueueConfig      `yaml:"queue"`
	Processors      ProcessorsConfig `yaml:"processors"`
	Exporters       []ExporterConfig `yaml:"exporters"`
	Controller      ControllerConfig `yaml:"controller"`
	Telemetry       TelemetryConfig  `yaml:"telemetry"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"`
}

// ReceiversConfig configures the two ingestion bindings.
type ReceiversConfig struct {
	GRPC GRPCReceiverConfig `yaml:"grpc"`
	HTTP HTTPReceiverConfig `yaml:"http"`
}

type GRPCReceiverConfig struct {
	Endpoint string `yaml:"endpoint"`
	// EnqueueTimeout bounds the wait for queue space before the binding
	// returns a retryable error.
	EnqueueTimeout Duration `yaml:"enqueue_timeout"`
}

type HTTPReceiverConfig struct {
	Endpoint     string `yaml:"endpoint"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// QueueConfig sizes each worker's per-signal ingestion queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// ProcessorsConfig configures the ordered stage chain.
type ProcessorsConfig struct {
	Enrich    EnrichConfig    `yaml:"enrich"`
	Transform TransformConfig `yaml:"transform"`
	Batch     BatchConfig     `yaml:"batch"`
}

type EnrichConfig struct {
	// Attributes are merged into each record's resource without
	// overwriting keys the producer already set.
	Attributes map[string]string `yaml:"attributes"`
}

type TransformConfig struct {
	Actions []ActionConfig `yaml:"actions"`
}

type ActionConfig struct {
	Key    string `yaml:"key"`
	Action string `yaml:"action"`
	Value  any    `yaml:"value"`
}

type BatchConfig struct {
	SendBatchSize int      `yaml:"send_batch_size"`
	Timeout       Duration `yaml:"timeout"`
}

// ExporterConfig declares one export target.
type ExporterConfig struct {
	Name     string       `yaml:"name"`
	Signal   string       `yaml:"signal"`
	Endpoint string       `yaml:"endpoint"`
	Timeout  Duration     `yaml:"timeout"`
	Retry    RetryConfig  `yaml:"retry"`
	Health   HealthConfig `yaml:"health"`
}

type RetryConfig struct {
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	MaxRetries      int      `yaml:"max_retries"`
	MaxElapsedTime  Duration `yaml:"max_elapsed_time"`
}

type HealthConfig struct {
	// ConsecutiveFailures is the failed-attempt streak that degrades
	// the target.
	ConsecutiveFailures int      `yaml:"consecutive_failures"`
	ProbeInterval       Duration `yaml:"probe_interval"`
}

// ControllerConfig holds the capacity controller thresholds.
type ControllerConfig struct {
	MinWorkers       int      `yaml:"min_workers"`
	MaxWorkers       int      `yaml:"max_workers"`
	EvaluateInterval Duration `yaml:"evaluate_interval"`
	Cooldown         Duration `yaml:"cooldown"`
	DrainTimeout     Duration `yaml:"drain_timeout"`
	HighWatermark    float64  `yaml:"high_watermark"`
	LowWatermark     float64  `yaml:"low_watermark"`
	Sustain          int      `yaml:"sustain"`
	SmoothingAlpha   float64  `yaml:"smoothing_alpha"`
	MemoryBudgetMiB  int      `yaml:"memory_budget_mib"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when the document omits a key.
func Default() *Config {
	return &Config{
		Receivers: ReceiversConfig{
			GRPC: GRPCReceiverConfig{
				Endpoint:       "0.0.0.0:4317",
				EnqueueTimeout: Duration(5 * time.Second),
			},
			HTTP: HTTPReceiverConfig{
				Endpoint:     "0.0.0.0:4318",
				MaxBodyBytes: 16 * 1024 * 1024,
			},
		},
		Queue: QueueConfig{Capacity: 4096},
		Processors: ProcessorsConfig{
			Batch: BatchConfig{
				SendBatchSize: 512,
				Timeout:       Duration(5 * time.Second),
			},
		},
		Controller: ControllerConfig{
			MinWorkers:       1,
			MaxWorkers:       8,
			EvaluateInterval: Duration(15 * time.Second),
			Cooldown:         Duration(60 * time.Second),
			DrainTimeout:     Duration(30 * time.Second),
			HighWatermark:    0.8,
			LowWatermark:     0.2,
			Sustain:          4,
			SmoothingAlpha:   0.5,
			MemoryBudgetMiB:  512,
		},
		Telemetry:       TelemetryConfig{Endpoint: "0.0.0.0:8888"},
		ShutdownTimeout: Duration(20 * time.Second),
	}
}

// Load reads, decodes and validates a configuration file. Any failure is
// fatal to startup; the pipeline never runs partially configured.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a configuration document over the
// defaults. Unknown keys are an error, not ignored.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole document. It is called by Load; tests and
// embedders constructing a Config directly must call it themselves.
func (c *Config) Validate() error {
	if c.Receivers.GRPC.Endpoint == "" {
		return errors.New("receivers.grpc.endpoint must not be empty")
	}
	if c.Receivers.HTTP.Endpoint == "" {
		return errors.New("receivers.http.endpoint must not be empty")
	}
	if c.Receivers.GRPC.EnqueueTimeout <= 0 {
		return errors.New("receivers.grpc.enqueue_timeout must be positive")
	}
	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	if c.Processors.Batch.SendBatchSize <= 0 {
		return errors.New("processors.batch.send_batch_size must be positive")
	}
	if c.Processors.Batch.Timeout <= 0 {
		return errors.New("processors.batch.timeout must be positive")
	}
	for i, a := range c.Processors.Transform.Actions {
		if err := a.ToAction().Validate(); err != nil {
			return fmt.Errorf("processors.transform.actions[%d]: %w", i, err)
		}
	}
	if len(c.Exporters) == 0 {
		return errors.New("at least one exporter must be configured")
	}
	names := make(map[string]struct{}, len(c.Exporters))
	for i, e := range c.Exporters {
		if e.Name == "" {
			return fmt.Errorf("exporters[%d]: name must not be empty", i)
		}
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("exporters[%d]: duplicate name %q", i, e.Name)
		}
		names[e.Name] = struct{}{}
		if _, err := model.ParseSignal(e.Signal); err != nil {
			return fmt.Errorf("exporters[%d]: %w", i, err)
		}
		if e.Endpoint == "" {
			return fmt.Errorf("exporters[%d]: endpoint must not be empty", i)
		}
		if e.Retry.MaxRetries < 0 {
			return fmt.Errorf("exporters[%d]: retry.max_retries must not be negative", i)
		}
	}
	ctrl := c.Controller
	if ctrl.MinWorkers < 1 {
		return errors.New("controller.min_workers must be at least 1")
	}
	if ctrl.MaxWorkers < ctrl.MinWorkers {
		return errors.New("controller.max_workers must not be below min_workers")
	}
	if ctrl.EvaluateInterval <= 0 {
		return errors.New("controller.evaluate_interval must be positive")
	}
	if ctrl.LowWatermark <= 0 || ctrl.HighWatermark <= ctrl.LowWatermark {
		return errors.New("controller watermarks must satisfy 0 < low < high")
	}
	if ctrl.Sustain < 1 {
		return errors.New("controller.sustain must be at least 1")
	}
	if ctrl.SmoothingAlpha <= 0 || ctrl.SmoothingAlpha > 1 {
		return errors.New("controller.smoothing_alpha must be in (0, 1]")
	}
	if c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// ToAction converts the YAML form into the processor's rule type.
func (a ActionConfig) ToAction() processor.Action {
	return processor.Action{
		Key:   a.Key,
		Type:  processor.ActionType(a.Action),
		Value: a.Value,
	}
}
