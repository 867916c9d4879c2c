// Copyright The TelePipe Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/telepipe/telepipe/internal/controller"

// ewma smooths a load signal so a single spike between two evaluations
// does not trigger scaling.
type ewma struct {
	alpha  float64
	value  float64
	primed bool
}

func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

// update folds one observation in and returns the smoothed value.
func (e *ewma) update(x float64) float64 {
	if !e.primed {
		e.value = x
		e.primed = true
		return x
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}
