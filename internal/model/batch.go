// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model // import "github.com/telepipe/telepipe/internal/model"

import (
	"fmt"
	"time"
)

// SealReason records which trigger sealed a batch.
type SealReason string

const (
	SealSize  SealReason = "size"
	SealAge   SealReason = "age"
	SealFlush SealReason = "flush"
)

// Batch is an ordered group of records of one signal type and one
// resource. It accumulates records until sealed; after Seal it is
// immutable and owned by the exporter until delivery resolves.
type Batch struct {
	signal   Signal
	resource *Resource
	records  []Record

	firstAt    time.Time
	sealed     bool
	sealReason SealReason
}

// NewBatch creates an empty batch for one signal type and resource.
func NewBatch(signal Signal, resource *Resource) *Batch {
	return &Batch{signal: signal, resource: resource}
}

// Append adds a record to an open batch, preserving arrival order.
func (b *Batch) Append(rec Record, now time.Time) error {
	if b.sealed {
		return ErrBatchSealed
	}
	if rec.Signal != b.signal {
		return fmt.Errorf("record signal %s does not match batch signal %s", rec.Signal, b.signal)
	}
	if len(b.records) == 0 {
		b.firstAt = now
	}
	b.records = append(b.records, rec)
	return nil
}

// Seal marks the batch immutable. Sealing twice keeps the first reason.
func (b *Batch) Seal(reason SealReason) {
	if b.sealed {
		return
	}
	b.sealed = true
	b.sealReason = reason
}

func (b *Batch) Sealed() bool        { return b.sealed }
func (b *Batch) Reason() SealReason  { return b.sealReason }
func (b *Batch) Signal() Signal      { return b.signal }
func (b *Batch) Resource() *Resource { return b.resource }
func (b *Batch) Len() int            { return len(b.records) }

// Age returns the time since the first record was appended, zero for an
// empty batch.
func (b *Batch) Age(now time.Time) time.Duration {
	if len(b.records) == 0 {
		return 0
	}
	return now.Sub(b.firstAt)
}

// Records exposes the batch contents. Callers must not modify the
// returned slice once the batch is sealed.
func (b *Batch) Records() []Record {
	return b.records
}
