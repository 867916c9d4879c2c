// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package exporter // import "github.com/telepipe/telepipe/internal/exporter"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/otlpconv"
)

const (
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
	logsPath    = "/v1/logs"

	protobufContentType = "application/x-protobuf"
)

// OTLPHTTPSink delivers batches as OTLP protobuf over HTTP, the delivery
// contract every backend store behind the pipeline accepts.
type OTLPHTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewOTLPHTTPSink builds a sink posting to endpoint (scheme://host:port,
// signal path appended per batch). timeout bounds a single delivery
// attempt.
func NewOTLPHTTPSink(endpoint string, timeout time.Duration) *OTLPHTTPSink {
	return &OTLPHTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Deliver implements Sink.
func (s *OTLPHTTPSink) Deliver(ctx context.Context, batch *model.Batch) error {
	body, path, err := encodeBatch(batch)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encode batch: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", protobufContentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case retryableStatus(resp.StatusCode):
		return fmt.Errorf("sink %s: %s", s.endpoint, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("sink %s rejected payload: %s", s.endpoint, resp.Status))
	}
}

func encodeBatch(batch *model.Batch) (body []byte, path string, err error) {
	switch batch.Signal() {
	case model.SignalTraces:
		body, err = ptraceotlp.NewExportRequestFromTraces(otlpconv.ToTraces(batch)).MarshalProto()
		return body, tracesPath, err
	case model.SignalMetrics:
		body, err = pmetricotlp.NewExportRequestFromMetrics(otlpconv.ToMetrics(batch)).MarshalProto()
		return body, metricsPath, err
	case model.SignalLogs:
		body, err = plogotlp.NewExportRequestFromLogs(otlpconv.ToLogs(batch)).MarshalProto()
		return body, logsPath, err
	}
	return nil, "", fmt.Errorf("unknown signal %q", batch.Signal())
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
