// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `
exporters:
  - name: trace-store
    signal: traces
    endpoint: http://collector:4318
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalDoc))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4317", cfg.Receivers.GRPC.Endpoint)
	assert.Equal(t, "0.0.0.0:4318", cfg.Receivers.HTTP.Endpoint)
	assert.Equal(t, 4096, cfg.Queue.Capacity)
	assert.Equal(t, 512, cfg.Processors.Batch.SendBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Processors.Batch.Timeout.AsDuration())
	assert.Equal(t, 1, cfg.Controller.MinWorkers)
	assert.Equal(t, 8, cfg.Controller.MaxWorkers)
	assert.Equal(t, 0.8, cfg.Controller.HighWatermark)
	assert.Equal(t, "0.0.0.0:8888", cfg.Telemetry.Endpoint)
	assert.Equal(t, 20*time.Second, cfg.ShutdownTimeout.AsDuration())
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := `
receivers:
  grpc:
    endpoint: 127.0.0.1:14317
    enqueue_timeout: 250ms
queue:
  capacity: 128
processors:
  batch:
    send_batch_size: 64
    timeout: 1s
  transform:
    actions:
      - key: secret
        action: delete
exporters:
  - name: trace-store
    signal: traces
    endpoint: http://collector:4318
    retry:
      initial_interval: 500ms
      max_retries: 3
    health:
      consecutive_failures: 4
      probe_interval: 10s
controller:
  min_workers: 2
  max_workers: 6
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:14317", cfg.Receivers.GRPC.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Receivers.GRPC.EnqueueTimeout.AsDuration())
	assert.Equal(t, 128, cfg.Queue.Capacity)
	assert.Equal(t, 64, cfg.Processors.Batch.SendBatchSize)
	require.Len(t, cfg.Processors.Transform.Actions, 1)
	assert.Equal(t, "delete", cfg.Processors.Transform.Actions[0].Action)
	require.Len(t, cfg.Exporters, 1)
	assert.Equal(t, 500*time.Millisecond, cfg.Exporters[0].Retry.InitialInterval.AsDuration())
	assert.Equal(t, 3, cfg.Exporters[0].Retry.MaxRetries)
	assert.Equal(t, 4, cfg.Exporters[0].Health.ConsecutiveFailures)
	assert.Equal(t, 2, cfg.Controller.MinWorkers)
	assert.Equal(t, 6, cfg.Controller.MaxWorkers)
	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0:4318", cfg.Receivers.HTTP.Endpoint)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	doc := minimalDoc + `
queue:
  capactiy: 128
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	doc := `
processors:
  batch:
    timeout: five seconds
` + minimalDoc
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestValidate(t *testing.T) {
	mutate := func(f func(*Config)) *Config {
		cfg, err := Parse([]byte(minimalDoc))
		require.NoError(t, err)
		f(cfg)
		return cfg
	}
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no exporters", mutate(func(c *Config) { c.Exporters = nil })},
		{"exporter without name", mutate(func(c *Config) { c.Exporters[0].Name = "" })},
		{"duplicate exporter name", mutate(func(c *Config) {
			c.Exporters = append(c.Exporters, c.Exporters[0])
		})},
		{"unknown signal", mutate(func(c *Config) { c.Exporters[0].Signal = "events" })},
		{"exporter without endpoint", mutate(func(c *Config) { c.Exporters[0].Endpoint = "" })},
		{"negative retries", mutate(func(c *Config) { c.Exporters[0].Retry.MaxRetries = -1 })},
		{"zero queue capacity", mutate(func(c *Config) { c.Queue.Capacity = 0 })},
		{"zero batch size", mutate(func(c *Config) { c.Processors.Batch.SendBatchSize = 0 })},
		{"invalid transform action", mutate(func(c *Config) {
			c.Processors.Transform.Actions = []ActionConfig{{Key: "k", Action: "replace"}}
		})},
		{"min workers below one", mutate(func(c *Config) { c.Controller.MinWorkers = 0 })},
		{"max below min", mutate(func(c *Config) {
			c.Controller.MinWorkers = 4
			c.Controller.MaxWorkers = 2
		})},
		{"inverted watermarks", mutate(func(c *Config) {
			c.Controller.HighWatermark = 0.1
			c.Controller.LowWatermark = 0.5
		})},
		{"zero sustain", mutate(func(c *Config) { c.Controller.Sustain = 0 })},
		{"alpha above one", mutate(func(c *Config) { c.Controller.SmoothingAlpha = 1.5 })},
		{"empty telemetry endpoint", mutate(func(c *Config) { c.Telemetry.Endpoint = "" })},
		{"zero shutdown timeout", mutate(func(c *Config) { c.ShutdownTimeout = 0 })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telepipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalDoc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "trace-store", cfg.Exporters[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
