// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package otlpconv translates between the OTLP pdata payloads spoken on
// the wire and the pipeline's internal record model. Decoding flattens a
// payload into individual records that share one Resource per payload
// entry; encoding rebuilds a pdata payload from a sealed batch.
package otlpconv // import "github.com/telepipe/telepipe/internal/otlpconv"

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/telepipe/telepipe/internal/model"
)

// FromTraces flattens a trace payload into records. All spans under one
// ResourceSpans entry share a single Resource pointer.
func FromTraces(td ptrace.Traces) []model.Record {
	recs := make([]model.Record, 0, td.SpanCount())
	rss := td.ResourceSpans()
	for i := 0; i < rss.Len(); i++ {
		rs := rss.At(i)
		res := resourceFrom(rs.Resource())
		sss := rs.ScopeSpans()
		for j := 0; j < sss.Len(); j++ {
			spans := sss.At(j).Spans()
			for k := 0; k < spans.Len(); k++ {
				recs = append(recs, spanRecord(spans.At(k), res))
			}
		}
	}
	return recs
}

// FromMetrics flattens a metrics payload into records. Only gauge and sum
// data points map onto the single-value MetricPoint model; data points of
// other metric types are skipped and reported in the second return value
// so the receiver can account for them.
func FromMetrics(md pmetric.Metrics) (recs []model.Record, skipped int) {
	recs = make([]model.Record, 0, md.DataPointCount())
	rms := md.ResourceMetrics()
	for i := 0; i < rms.Len(); i++ {
		rm := rms.At(i)
		res := resourceFrom(rm.Resource())
		sms := rm.ScopeMetrics()
		for j := 0; j < sms.Len(); j++ {
			metrics := sms.At(j).Metrics()
			for k := 0; k < metrics.Len(); k++ {
				m := metrics.At(k)
				switch m.Type() {
				case pmetric.MetricTypeGauge:
					dps := m.Gauge().DataPoints()
					for l := 0; l < dps.Len(); l++ {
						recs = append(recs, numberRecord(m, dps.At(l), model.TemporalityUnspecified, res))
					}
				case pmetric.MetricTypeSum:
					temporality := temporalityFrom(m.Sum().AggregationTemporality())
					dps := m.Sum().DataPoints()
					for l := 0; l < dps.Len(); l++ {
						recs = append(recs, numberRecord(m, dps.At(l), temporality, res))
					}
				default:
					skipped += dataPointCount(m)
				}
			}
		}
	}
	return recs, skipped
}

// FromLogs flattens a log payload into records.
func FromLogs(ld plog.Logs) []model.Record {
	recs := make([]model.Record, 0, ld.LogRecordCount())
	rls := ld.ResourceLogs()
	for i := 0; i < rls.Len(); i++ {
		rl := rls.At(i)
		res := resourceFrom(rl.Resource())
		sls := rl.ScopeLogs()
		for j := 0; j < sls.Len(); j++ {
			lrs := sls.At(j).LogRecords()
			for k := 0; k < lrs.Len(); k++ {
				recs = append(recs, logRecord(lrs.At(k), res))
			}
		}
	}
	return recs
}

func resourceFrom(res pcommon.Resource) *model.Resource {
	if res.Attributes().Len() == 0 {
		return model.EmptyResource
	}
	return model.NewResource(res.Attributes().AsRaw())
}

func spanRecord(span ptrace.Span, res *model.Resource) model.Record {
	s := &model.Span{
		TraceID:       [16]byte(span.TraceID()),
		SpanID:        [8]byte(span.SpanID()),
		ParentSpanID:  [8]byte(span.ParentSpanID()),
		Name:          span.Name(),
		DurationNanos: int64(span.EndTimestamp() - span.StartTimestamp()),
	}
	switch span.Status().Code() {
	case ptrace.StatusCodeOk:
		s.Status = model.StatusOK
	case ptrace.StatusCodeError:
		s.Status = model.StatusError
	}
	return model.Record{
		Signal:     model.SignalTraces,
		Resource:   res,
		Timestamp:  span.StartTimestamp().AsTime(),
		Attributes: span.Attributes().AsRaw(),
		Span:       s,
	}
}

func numberRecord(m pmetric.Metric, dp pmetric.NumberDataPoint, temporality model.Temporality, res *model.Resource) model.Record {
	value := dp.DoubleValue()
	if dp.ValueType() == pmetric.NumberDataPointValueTypeInt {
		value = float64(dp.IntValue())
	}
	return model.Record{
		Signal:     model.SignalMetrics,
		Resource:   res,
		Timestamp:  dp.Timestamp().AsTime(),
		Attributes: dp.Attributes().AsRaw(),
		Metric: &model.MetricPoint{
			Name:        m.Name(),
			Value:       value,
			Unit:        m.Unit(),
			Temporality: temporality,
		},
	}
}

func logRecord(lr plog.LogRecord, res *model.Resource) model.Record {
	return model.Record{
		Signal:     model.SignalLogs,
		Resource:   res,
		Timestamp:  lr.Timestamp().AsTime(),
		Attributes: lr.Attributes().AsRaw(),
		Log: &model.LogEntry{
			Severity:     int32(lr.SeverityNumber()),
			SeverityText: lr.SeverityText(),
			Body:         lr.Body().AsString(),
		},
	}
}

func temporalityFrom(t pmetric.AggregationTemporality) model.Temporality {
	switch t {
	case pmetric.AggregationTemporalityCumulative:
		return model.TemporalityCumulative
	case pmetric.AggregationTemporalityDelta:
		return model.TemporalityDelta
	}
	return model.TemporalityUnspecified
}

func dataPointCount(m pmetric.Metric) int {
	switch m.Type() {
	case pmetric.MetricTypeHistogram:
		return m.Histogram().DataPoints().Len()
	case pmetric.MetricTypeExponentialHistogram:
		return m.ExponentialHistogram().DataPoints().Len()
	case pmetric.MetricTypeSummary:
		return m.Summary().DataPoints().Len()
	}
	return 0
}
