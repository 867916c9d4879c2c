// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceImmutable(t *testing.T) {
	attrs := map[string]any{"service.name": "checkout"}
	res := NewResource(attrs)

	// Mutating the source map must not leak into the resource.
	attrs["service.name"] = "other"
	v, ok := res.Get("service.name")
	assert.True(t, ok)
	assert.Equal(t, "checkout", v)
}

func TestResourceKeyStable(t *testing.T) {
	a := NewResource(map[string]any{"a": 1, "b": "x"})
	b := NewResource(map[string]any{"b": "x", "a": 1})
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))

	c := NewResource(map[string]any{"a": 2, "b": "x"})
	assert.False(t, a.Equal(c))
}

func TestResourceWithDefaults(t *testing.T) {
	res := NewResource(map[string]any{"service.name": "checkout"})

	derived := res.WithDefaults(map[string]any{
		"service.name": "overwritten",
		"env":          "prod",
	})
	v, _ := derived.Get("service.name")
	assert.Equal(t, "checkout", v, "producer attributes must not be overwritten")
	v, _ = derived.Get("env")
	assert.Equal(t, "prod", v)

	// Nothing missing: the same resource is returned, preserving sharing.
	same := derived.WithDefaults(map[string]any{"env": "staging"})
	assert.Same(t, derived, same)
}
