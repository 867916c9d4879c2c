// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package receiver terminates the two ingestion bindings: the OTLP gRPC
// services and the OTLP/HTTP endpoints. Both decode payloads into the
// internal record model and hand them to the load distributor.
package receiver // import "github.com/telepipe/telepipe/internal/receiver"

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/telemetry"
)

// Dispatcher routes one decoded payload to a worker. Dispatch applies a
// bounded wait under backpressure; TryDispatch fails immediately.
type Dispatcher interface {
	Dispatch(ctx context.Context, recs []model.Record) error
	TryDispatch(recs []model.Record) error
}

// Settings configures the two bindings.
type Settings struct {
	// GRPCEndpoint is the bind address of the streaming RPC binding.
	GRPCEndpoint string
	// HTTPEndpoint is the bind address of the request/response binding.
	HTTPEndpoint string
	// EnqueueTimeout bounds how long the gRPC binding waits for queue
	// space before returning a retryable error.
	EnqueueTimeout time.Duration
	// MaxBodyBytes caps an HTTP request body.
	MaxBodyBytes int64
}

// Receiver runs both bindings over one dispatcher.
type Receiver struct {
	settings   Settings
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    *telemetry.Metrics

	grpcServer *grpc.Server
	httpServer *http.Server
	grpcLn     net.Listener
	httpLn     net.Listener
}

// New builds a receiver; Start binds the ports.
func New(settings Settings, d Dispatcher, logger *zap.Logger, metrics *telemetry.Metrics) *Receiver {
	r := &Receiver{
		settings:   settings,
		dispatcher: d,
		logger:     logger,
		metrics:    metrics,
	}

	r.grpcServer = grpc.NewServer()
	ptraceotlp.RegisterGRPCServer(r.grpcServer, &tracesService{recv: r})
	pmetricotlp.RegisterGRPCServer(r.grpcServer, &metricsService{recv: r})
	plogotlp.RegisterGRPCServer(r.grpcServer, &logsService{recv: r})

	mux := http.NewServeMux()
	mux.HandleFunc(tracesPath, r.handleTraces)
	mux.HandleFunc(metricsPath, r.handleMetrics)
	mux.HandleFunc(logsPath, r.handleLogs)
	r.httpServer = &http.Server{
		Addr:              settings.HTTPEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return r
}

// Start binds both endpoints and begins serving in the background.
func (r *Receiver) Start() error {
	grpcLn, err := net.Listen("tcp", r.settings.GRPCEndpoint)
	if err != nil {
		return err
	}
	httpLn, err := net.Listen("tcp", r.settings.HTTPEndpoint)
	if err != nil {
		_ = grpcLn.Close()
		return err
	}
	r.grpcLn, r.httpLn = grpcLn, httpLn

	go func() {
		if err := r.grpcServer.Serve(grpcLn); err != nil {
			r.logger.Error("grpc server stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := r.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	r.logger.Info("receivers started",
		zap.String("grpc", grpcLn.Addr().String()),
		zap.String("http", httpLn.Addr().String()))
	return nil
}

// GRPCAddr returns the bound gRPC address.
func (r *Receiver) GRPCAddr() string {
	if r.grpcLn == nil {
		return r.settings.GRPCEndpoint
	}
	return r.grpcLn.Addr().String()
}

// HTTPAddr returns the bound HTTP address.
func (r *Receiver) HTTPAddr() string {
	if r.httpLn == nil {
		return r.settings.HTTPEndpoint
	}
	return r.httpLn.Addr().String()
}

// Shutdown stops accepting new payloads, letting in-flight requests
// finish up to the context deadline.
func (r *Receiver) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		r.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		r.grpcServer.Stop()
	}
	return r.httpServer.Shutdown(ctx)
}

// received counts an accepted payload against the load signals the
// capacity controller consumes.
func (r *Receiver) received(sig model.Signal, records, bytes int) {
	r.metrics.ReceivedRecords.WithLabelValues(sig.String()).Add(float64(records))
	r.metrics.ReceivedBytes.WithLabelValues(sig.String()).Add(float64(bytes))
}

func (r *Receiver) refused(sig model.Signal, records int, reason string) {
	r.metrics.RefusedRecords.WithLabelValues(sig.String(), reason).Add(float64(records))
}
