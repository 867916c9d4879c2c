// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model // import "github.com/telepipe/telepipe/internal/model"

import "fmt"

// Signal identifies one of the three telemetry data types the pipeline
// carries. Every record, queue and export target is bound to exactly one
// signal type.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalMetrics Signal = "metrics"
	SignalLogs    Signal = "logs"
)

// Signals lists all supported signal types in a stable order.
var Signals = []Signal{SignalTraces, SignalMetrics, SignalLogs}

func (s Signal) String() string {
	return string(s)
}

// ParseSignal converts a configuration string into a Signal.
func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalTraces, SignalMetrics, SignalLogs:
		return Signal(s), nil
	}
	return "", fmt.Errorf("unknown signal type %q", s)
}
