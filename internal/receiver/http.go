// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package receiver // import "github.com/telepipe/telepipe/internal/receiver"

import (
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"

	"github.com/telepipe/telepipe/internal/model"
	"github.com/telepipe/telepipe/internal/otlpconv"
)

const (
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
	logsPath    = "/v1/logs"

	protobufContentType = "application/x-protobuf"
	jsonContentType     = "application/json"
)

func (r *Receiver) handleTraces(w http.ResponseWriter, req *http.Request) {
	r.handle(w, req, model.SignalTraces, func(body []byte, proto bool) ([]model.Record, []byte, error) {
		exportReq := ptraceotlp.NewExportRequest()
		if err := unmarshalReq(body, proto, exportReq.UnmarshalProto, exportReq.UnmarshalJSON); err != nil {
			return nil, nil, err
		}
		resp, err := marshalResp(proto, ptraceotlp.NewExportResponse().MarshalProto, ptraceotlp.NewExportResponse().MarshalJSON)
		if err != nil {
			return nil, nil, err
		}
		return otlpconv.FromTraces(exportReq.Traces()), resp, nil
	})
}

func (r *Receiver) handleMetrics(w http.ResponseWriter, req *http.Request) {
	r.handle(w, req, model.SignalMetrics, func(body []byte, proto bool) ([]model.Record, []byte, error) {
		exportReq := pmetricotlp.NewExportRequest()
		if err := unmarshalReq(body, proto, exportReq.UnmarshalProto, exportReq.UnmarshalJSON); err != nil {
			return nil, nil, err
		}
		resp, err := marshalResp(proto, pmetricotlp.NewExportResponse().MarshalProto, pmetricotlp.NewExportResponse().MarshalJSON)
		if err != nil {
			return nil, nil, err
		}
		recs, skipped := otlpconv.FromMetrics(exportReq.Metrics())
		if skipped > 0 {
			r.refused(model.SignalMetrics, skipped, "unsupported")
		}
		return recs, resp, nil
	})
}

func (r *Receiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	r.handle(w, req, model.SignalLogs, func(body []byte, proto bool) ([]model.Record, []byte, error) {
		exportReq := plogotlp.NewExportRequest()
		if err := unmarshalReq(body, proto, exportReq.UnmarshalProto, exportReq.UnmarshalJSON); err != nil {
			return nil, nil, err
		}
		resp, err := marshalResp(proto, plogotlp.NewExportResponse().MarshalProto, plogotlp.NewExportResponse().MarshalJSON)
		if err != nil {
			return nil, nil, err
		}
		return otlpconv.FromLogs(exportReq.Logs()), resp, nil
	})
}

// handle implements the shared HTTP flow: decode the payload as a whole,
// reject it entirely on a decode failure, and surface backpressure as a
// retryable 503 so the caller's retry preserves at-least-once delivery.
func (r *Receiver) handle(w http.ResponseWriter, req *http.Request, sig model.Signal, decode func(body []byte, proto bool) ([]model.Record, []byte, error)) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var proto bool
	switch req.Header.Get("Content-Type") {
	case protobufContentType:
		proto = true
	case jsonContentType:
	default:
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.settings.MaxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	recs, resp, err := decode(body, proto)
	if err != nil {
		decErr := &model.DecodeError{Err: err}
		// The payload never decoded, so its record count is unknown; the
		// rejection itself is counted once.
		r.refused(sig, 1, "decode")
		r.logger.Debug("payload rejected", zap.String("signal", sig.String()), zap.Error(decErr))
		http.Error(w, decErr.Error(), http.StatusBadRequest)
		return
	}

	if len(recs) > 0 {
		if err := r.dispatcher.TryDispatch(recs); err != nil {
			switch {
			case errors.Is(err, model.ErrQueueFull), errors.Is(err, model.ErrNoWorkers), errors.Is(err, model.ErrDraining):
				r.refused(sig, len(recs), "queue_full")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "ingestion queue full, retry later", http.StatusServiceUnavailable)
			default:
				r.refused(sig, len(recs), "internal")
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		r.received(sig, len(recs), len(body))
	}

	contentType := jsonContentType
	if proto {
		contentType = protobufContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func unmarshalReq(body []byte, proto bool, fromProto, fromJSON func([]byte) error) error {
	if proto {
		return fromProto(body)
	}
	return fromJSON(body)
}

func marshalResp(proto bool, toProto, toJSON func() ([]byte, error)) ([]byte, error) {
	if proto {
		return toProto()
	}
	return toJSON()
}
