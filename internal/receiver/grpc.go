// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package receiver // import "github.com/telepipe/telepipe/internal/receiver"

import (
	"context"
	"errors"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/otlpconv"
)

type tracesService struct {
	ptraceotlp.UnimplementedGRPCServer
	recv *Receiver
}

func (s *tracesService) Export(ctx context.Context, req ptraceotlp.ExportRequest) (ptraceotlp.ExportResponse, error) {
	td := req.Traces()
	if td.SpanCount() == 0 {
		return ptraceotlp.NewExportResponse(), nil
	}
	sizer := &ptrace.ProtoMarshaler{}
	recs := otlpconv.FromTraces(td)
	err := s.recv.dispatch(ctx, model.SignalTraces, recs, sizer.TracesSize(td))
	return ptraceotlp.NewExportResponse(), err
}

type metricsService struct {
	pmetricotlp.UnimplementedGRPCServer
	recv *Receiver
}

func (s *metricsService) Export(ctx context.Context, req pmetricotlp.ExportRequest) (pmetricotlp.ExportResponse, error) {
	md := req.Metrics()
	if md.DataPointCount() == 0 {
		return pmetricotlp.NewExportResponse(), nil
	}
	sizer := &pmetric.ProtoMarshaler{}
	recs, skipped := otlpconv.FromMetrics(md)
	if skipped > 0 {
		s.recv.refused(model.SignalMetrics, skipped, "unsupported")
	}
	err := s.recv.dispatch(ctx, model.SignalMetrics, recs, sizer.MetricsSize(md))
	return pmetricotlp.NewExportResponse(), err
}

type logsService struct {
	plogotlp.UnimplementedGRPCServer
	recv *Receiver
}

func (s *logsService) Export(ctx context.Context, req plogotlp.ExportRequest) (plogotlp.ExportResponse, error) {
	ld := req.Logs()
	if ld.LogRecordCount() == 0 {
		return plogotlp.NewExportResponse(), nil
	}
	sizer := &plog.ProtoMarshaler{}
	recs := otlpconv.FromLogs(ld)
	err := s.recv.dispatch(ctx, model.SignalLogs, recs, sizer.LogsSize(ld))
	return plogotlp.NewExportResponse(), err
}

// dispatch enqueues a decoded gRPC payload with the configured bounded
// wait and maps pipeline errors onto gRPC status codes.
func (r *Receiver) dispatch(ctx context.Context, sig model.Signal, recs []model.Record, bytes int) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.settings.EnqueueTimeout)
	defer cancel()
	if err := r.dispatcher.Dispatch(ctx, recs); err != nil {
		switch {
		case errors.Is(err, model.ErrQueueFull):
			r.refused(sig, len(recs), "queue_full")
			return status.Error(codes.ResourceExhausted, "ingestion queue full, retry later")
		case errors.Is(err, model.ErrNoWorkers), errors.Is(err, model.ErrDraining):
			r.refused(sig, len(recs), "no_workers")
			return status.Error(codes.Unavailable, "no worker available, retry later")
		default:
			r.refused(sig, len(recs), "internal")
			return status.Error(codes.Internal, err.Error())
		}
	}
	r.received(sig, len(recs), bytes)
	return nil
}
