// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package processor // import "github.com/telepipe/telepipe/internal/processor"

import (
	"time"

	"github.com/telepipe/telepipe/internal/model"
)

// Batcher accumulates records into per-resource batches and seals each
// batch at whichever trigger fires first: the size threshold or the age
// threshold. It is owned by a single worker goroutine and is not safe for
// concurrent use.
type Batcher struct {
	maxSize int
	maxAge  time.Duration
	now     func() time.Time

	open  map[string]*model.Batch
	order []string
}

// NewBatcher creates a batcher sealing at maxSize records or maxAge since
// a batch's first record, whichever comes first.
func NewBatcher(maxSize int, maxAge time.Duration) *Batcher {
	return &Batcher{
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
		open:    make(map[string]*model.Batch),
	}
}

// Add appends a record to the open batch for its signal and resource,
// creating one if needed. When the append hits the size threshold the
// batch is sealed and returned; otherwise Add returns nil.
func (b *Batcher) Add(rec model.Record) *model.Batch {
	key := string(rec.Signal) + "\x00" + rec.Resource.Key()
	batch, ok := b.open[key]
	if !ok {
		batch = model.NewBatch(rec.Signal, rec.Resource)
		b.open[key] = batch
		b.order = append(b.order, key)
	}
	// Append cannot fail here: the batch is open and keyed by signal.
	_ = batch.Append(rec, b.now())
	if batch.Len() >= b.maxSize {
		batch.Seal(model.SealSize)
		b.remove(key)
		return batch
	}
	return nil
}

// SealExpired seals and returns every open batch older than the age
// threshold, in batch creation order.
func (b *Batcher) SealExpired(now time.Time) []*model.Batch {
	var sealed []*model.Batch
	remaining := b.order[:0]
	for _, key := range b.order {
		batch := b.open[key]
		if batch.Age(now) >= b.maxAge {
			batch.Seal(model.SealAge)
			delete(b.open, key)
			sealed = append(sealed, batch)
			continue
		}
		remaining = append(remaining, key)
	}
	b.order = remaining
	return sealed
}

// Flush seals and returns all open batches regardless of thresholds, in
// batch creation order. Used on shutdown and worker drain.
func (b *Batcher) Flush() []*model.Batch {
	sealed := make([]*model.Batch, 0, len(b.order))
	for _, key := range b.order {
		batch := b.open[key]
		batch.Seal(model.SealFlush)
		sealed = append(sealed, batch)
	}
	b.open = make(map[string]*model.Batch)
	b.order = nil
	return sealed
}

// OpenRecords returns the number of records held in open batches.
func (b *Batcher) OpenRecords() int {
	total := 0
	for _, batch := range b.open {
		total += batch.Len()
	}
	return total
}

func (b *Batcher) remove(key string) {
	delete(b.open, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
