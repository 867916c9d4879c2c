// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package config // import "github.com/telepipe/telepipe/config"

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from the usual "5s" / "1m30s"
// YAML scalar form.
type Duration time.Duration

var _ yaml.Unmarshaler = (*Duration)(nil)

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the standard library form.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}
