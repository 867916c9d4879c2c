// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package otlpconv // import "github.com/telepipe/telepipe/internal/otlpconv"

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/telepipe/telepipe/internal/model"
)

// ToTraces rebuilds a trace payload from a sealed batch. All records of a
// batch share one resource, so the payload has a single ResourceSpans
// entry with record order preserved.
func ToTraces(b *model.Batch) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	fillResource(rs.Resource(), b.Resource())
	spans := rs.ScopeSpans().AppendEmpty().Spans()
	for _, rec := range b.Records() {
		span := spans.AppendEmpty()
		span.SetTraceID(pcommon.TraceID(rec.Span.TraceID))
		span.SetSpanID(pcommon.SpanID(rec.Span.SpanID))
		if rec.Span.ParentSpanID != ([8]byte{}) {
			span.SetParentSpanID(pcommon.SpanID(rec.Span.ParentSpanID))
		}
		span.SetName(rec.Span.Name)
		start := pcommon.NewTimestampFromTime(rec.Timestamp)
		span.SetStartTimestamp(start)
		span.SetEndTimestamp(pcommon.Timestamp(int64(start) + rec.Span.DurationNanos))
		switch rec.Span.Status {
		case model.StatusOK:
			span.Status().SetCode(ptrace.StatusCodeOk)
		case model.StatusError:
			span.Status().SetCode(ptrace.StatusCodeError)
		}
		_ = span.Attributes().FromRaw(rec.Attributes)
	}
	return td
}

// ToMetrics rebuilds a metrics payload from a sealed batch. Each record
// becomes one metric with a single data point; cumulative and delta
// points become sums, unspecified ones become gauges.
func ToMetrics(b *model.Batch) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	fillResource(rm.Resource(), b.Resource())
	metrics := rm.ScopeMetrics().AppendEmpty().Metrics()
	for _, rec := range b.Records() {
		m := metrics.AppendEmpty()
		m.SetName(rec.Metric.Name)
		m.SetUnit(rec.Metric.Unit)
		var dp pmetric.NumberDataPoint
		switch rec.Metric.Temporality {
		case model.TemporalityCumulative:
			sum := m.SetEmptySum()
			sum.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)
			dp = sum.DataPoints().AppendEmpty()
		case model.TemporalityDelta:
			sum := m.SetEmptySum()
			sum.SetAggregationTemporality(pmetric.AggregationTemporalityDelta)
			dp = sum.DataPoints().AppendEmpty()
		default:
			dp = m.SetEmptyGauge().DataPoints().AppendEmpty()
		}
		dp.SetDoubleValue(rec.Metric.Value)
		dp.SetTimestamp(pcommon.NewTimestampFromTime(rec.Timestamp))
		_ = dp.Attributes().FromRaw(rec.Attributes)
	}
	return md
}

// ToLogs rebuilds a log payload from a sealed batch.
func ToLogs(b *model.Batch) plog.Logs {
	ld := plog.NewLogs()
	rl := ld.ResourceLogs().AppendEmpty()
	fillResource(rl.Resource(), b.Resource())
	lrs := rl.ScopeLogs().AppendEmpty().LogRecords()
	for _, rec := range b.Records() {
		lr := lrs.AppendEmpty()
		lr.SetTimestamp(pcommon.NewTimestampFromTime(rec.Timestamp))
		lr.SetSeverityNumber(plog.SeverityNumber(rec.Log.Severity))
		lr.SetSeverityText(rec.Log.SeverityText)
		lr.Body().SetStr(rec.Log.Body)
		_ = lr.Attributes().FromRaw(rec.Attributes)
	}
	return ld
}

func fillResource(dst pcommon.Resource, src *model.Resource) {
	_ = dst.Attributes().FromRaw(src.Attributes())
}
