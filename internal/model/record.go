// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model // import "github.com/telepipe/telepipe/internal/model"

import "time"

// StatusCode mirrors the span status codes of the wire protocol.
type StatusCode int32

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Temporality describes how a metric value relates to previous reports of
// the same metric.
type Temporality int32

const (
	TemporalityUnspecified Temporality = iota
	TemporalityCumulative
	TemporalityDelta
)

// Span is the trace variant of a record.
type Span struct {
	TraceID       [16]byte
	SpanID        [8]byte
	ParentSpanID  [8]byte // zero when the span is a root
	Name          string
	DurationNanos int64
	Status        StatusCode
}

// MetricPoint is the metric variant of a record: a single numeric data
// point of a named metric.
type MetricPoint struct {
	Name        string
	Value       float64
	Unit        string
	Temporality Temporality
}

// LogEntry is the log variant of a record.
type LogEntry struct {
	Severity     int32
	SeverityText string
	Body         string
}

// Record is the pipeline's internal unit of telemetry: a tagged union over
// span, metric point and log entry. Exactly one of Span, Metric and Log is
// non-nil, matching Signal. The Resource pointer is shared across all
// records decoded from the same payload entry; Attributes belong to this
// record alone and may be rewritten by processor stages.
type Record struct {
	Signal     Signal
	Resource   *Resource
	Timestamp  time.Time
	Attributes map[string]any

	Span   *Span
	Metric *MetricPoint
	Log    *LogEntry
}
