// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package exporter // import "github.com/telepipe/telepipe/internal/exporter"

import (
	"sync"
	"time"

	"github.com/telepipe/telepipe/internal/model"
)

// HealthState is the delivery state of an export target.
type HealthState int32

const (
	HealthHealthy HealthState = iota
	HealthDegraded
)

func (h HealthState) String() string {
	if h == HealthDegraded {
		return "degraded"
	}
	return "healthy"
}

// RetryPolicy bounds the per-batch retry schedule of a target.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
	MaxElapsedTime  time.Duration
}

// Target is a named export destination with a signal-type affinity. Its
// health state follows a circuit-breaker pattern: after the configured
// number of consecutive failed attempts it degrades, and while degraded
// only one probe delivery per probe interval is attempted until a probe
// succeeds.
type Target struct {
	name          string
	signal        model.Signal
	sink          Sink
	retry         RetryPolicy
	failThreshold int
	probeInterval time.Duration

	mu        sync.Mutex
	state     HealthState
	failures  int
	nextProbe time.Time
}

// NewTarget builds a target. failThreshold is the number of consecutive
// failed delivery attempts that degrades the target.
func NewTarget(name string, signal model.Signal, sink Sink, retry RetryPolicy, failThreshold int, probeInterval time.Duration) *Target {
	return &Target{
		name:          name,
		signal:        signal,
		sink:          sink,
		retry:         retry,
		failThreshold: failThreshold,
		probeInterval: probeInterval,
	}
}

func (t *Target) Name() string         { return t.name }
func (t *Target) Signal() model.Signal { return t.signal }

// State returns the current delivery state.
func (t *Target) State() HealthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// admit reports whether a delivery may be attempted now. For a degraded
// target it admits at most one probe per probe interval.
func (t *Target) admit(now time.Time) (ok, probe bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == HealthHealthy {
		return true, false
	}
	if now.Before(t.nextProbe) {
		return false, false
	}
	t.nextProbe = now.Add(t.probeInterval)
	return true, true
}

// recordSuccess resets the failure streak and restores a degraded target
// to healthy. It reports whether a state transition happened.
func (t *Target) recordSuccess() (recovered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = 0
	if t.state == HealthDegraded {
		t.state = HealthHealthy
		return true
	}
	return false
}

// recordFailure counts one failed attempt and degrades the target when
// the streak reaches the threshold. It reports whether a state
// transition happened.
func (t *Target) recordFailure(now time.Time) (degraded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	if t.state == HealthHealthy && t.failures >= t.failThreshold {
		t.state = HealthDegraded
		t.nextProbe = now.Add(t.probeInterval)
		return true
	}
	return false
}
