// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

// Package processor implements the ordered stage chain applied to every
// record between the ingestion queue and the exporter: resource
// enrichment, attribute transformation and batching.
package processor // import "github.com/telepipe/telepipe/internal/processor"

import "github.com/telepipe/telepipe/internal/model"

// Stage is one record-wise step of the chain. A returned error drops that
// record only; the pipeline continues with the next one.
type Stage interface {
	Name() string
	ProcessRecord(rec *model.Record) error
}
