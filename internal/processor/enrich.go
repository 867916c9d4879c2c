// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package processor // import "github.com/telepipe/telepipe/internal/processor"

import (
	"time"

	"github.com/telepipe/telepipe/internal/model"
)

const (
	attrInstanceID = "telepipe.instance.id"
	attrIngestTime = "telepipe.ingest.time"
)

// enrichStage merges receiver-side attributes into each record's
// resource: the collector instance id, the ingestion timestamp and any
// statically configured attributes. Keys the producer already set are
// never overwritten, and the original Resource is never mutated; records
// are repointed at a derived copy.
type enrichStage struct {
	static map[string]any
	now    func() time.Time

	// Records of one payload arrive back to back and share a Resource
	// pointer, so memoizing the last derivation covers almost every call.
	lastIn  *model.Resource
	lastOut *model.Resource
}

// NewEnrichStage builds the resource enrichment stage. instanceID is the
// per-process collector id; extra holds operator-configured attributes.
func NewEnrichStage(instanceID string, extra map[string]string) Stage {
	static := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		static[k] = v
	}
	static[attrInstanceID] = instanceID
	return &enrichStage{static: static, now: time.Now}
}

func (s *enrichStage) Name() string {
	return "enrich"
}

func (s *enrichStage) ProcessRecord(rec *model.Record) error {
	if rec.Resource == s.lastIn {
		rec.Resource = s.lastOut
		return nil
	}
	defaults := make(map[string]any, len(s.static)+1)
	for k, v := range s.static {
		defaults[k] = v
	}
	defaults[attrIngestTime] = s.now().UTC().Format(time.RFC3339Nano)
	derived := rec.Resource.WithDefaults(defaults)
	s.lastIn, s.lastOut = rec.Resource, derived
	rec.Resource = derived
	return nil
}
