// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model // import "github.com/telepipe/telepipe/internal/model"

import (
	"fmt"
	"sort"
	"strings"
)

// Resource identifies the producer of a set of telemetry records: service
// name, instance id, environment and whatever else the producer attached.
// A Resource is immutable once constructed and is shared by reference by
// all records decoded from the same payload. Enrichment never mutates a
// Resource in place; it derives a new one with WithDefaults.
type Resource struct {
	attrs map[string]any
	key   string
}

// NewResource builds an immutable Resource from the given attributes. The
// map is copied; the caller keeps ownership of its argument.
func NewResource(attrs map[string]any) *Resource {
	c := make(map[string]any, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return &Resource{attrs: c, key: identityKey(c)}
}

// EmptyResource is the resource used for records whose payload carried no
// resource information.
var EmptyResource = NewResource(nil)

// Get returns the value for an attribute key.
func (r *Resource) Get(key string) (any, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Len returns the number of attributes.
func (r *Resource) Len() int {
	return len(r.attrs)
}

// Range calls f for every attribute until f returns false.
func (r *Resource) Range(f func(k string, v any) bool) {
	for k, v := range r.attrs {
		if !f(k, v) {
			return
		}
	}
}

// Attributes returns a copy of the attribute map.
func (r *Resource) Attributes() map[string]any {
	c := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		c[k] = v
	}
	return c
}

// Key returns a canonical identity string for the resource, used to group
// records of the same producer into one batch.
func (r *Resource) Key() string {
	return r.key
}

// Equal reports whether two resources carry identical attributes.
func (r *Resource) Equal(o *Resource) bool {
	return r.key == o.key
}

// WithDefaults returns a Resource extended with every key from defaults
// that the producer did not already set. If nothing is absent the receiver
// is returned unchanged, preserving sharing.
func (r *Resource) WithDefaults(defaults map[string]any) *Resource {
	missing := 0
	for k := range defaults {
		if _, ok := r.attrs[k]; !ok {
			missing++
		}
	}
	if missing == 0 {
		return r
	}
	merged := make(map[string]any, len(r.attrs)+missing)
	for k, v := range r.attrs {
		merged[k] = v
	}
	for k, v := range defaults {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return &Resource{attrs: merged, key: identityKey(merged)}
}

func identityKey(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(0x1e)
		}
		fmt.Fprintf(&sb, "%s=%v", k, attrs[k])
	}
	return sb.String()
}
