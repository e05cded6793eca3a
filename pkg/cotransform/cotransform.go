// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package cotransform relabels sampled surfaces between a mirror's native
// finite-element frame and the optics (Zemax) frame.
//
// A map is an optional x/y swap followed by per-axis sign flips. It never
// interpolates or resamples.
package cotransform

import (
	"fmt"

	"mirrorsim/pkg/errors"
)

// AxisMap maps native (x, y, z) to optics-frame coordinates.
type AxisMap struct {
	SwapXY bool
	SignX  float64
	SignY  float64
	SignZ  float64
}

// Named frames for the shipped mirrors. Both mirror models are flipped
// about the y axis with the surface normal reversed.
var (
	M1M3ToZemax = AxisMap{SignX: -1, SignY: 1, SignZ: -1}
	M2ToZemax   = AxisMap{SignX: -1, SignY: 1, SignZ: -1}
	Identity    = AxisMap{SignX: 1, SignY: 1, SignZ: 1}
)

// Validate checks that every sign is exactly +1 or -1.
func (a AxisMap) Validate() error {
	for _, s := range []struct {
		axis string
		v    float64
	}{{"x", a.SignX}, {"y", a.SignY}, {"z", a.SignZ}} {
		if s.v != 1 && s.v != -1 {
			return errors.ConfigurationError("axis map", fmt.Sprintf("sign %s must be +1 or -1, got %v", s.axis, s.v))
		}
	}
	return nil
}

// Forward maps native samples into the optics frame. The inputs are not
// modified.
func (a AxisMap) Forward(x, y, z []float64) (ox, oy, oz []float64, err error) {
	if err := a.check(x, y, z); err != nil {
		return nil, nil, nil, err
	}
	if a.SwapXY {
		x, y = y, x
	}
	return scaled(x, a.SignX), scaled(y, a.SignY), scaled(z, a.SignZ), nil
}

// Inverse maps optics-frame samples back to the native frame.
func (a AxisMap) Inverse(x, y, z []float64) (nx, ny, nz []float64, err error) {
	if err := a.check(x, y, z); err != nil {
		return nil, nil, nil, err
	}
	// Signs are ±1 so each is its own inverse; undo them before the swap.
	nx, ny, nz = scaled(x, a.SignX), scaled(y, a.SignY), scaled(z, a.SignZ)
	if a.SwapXY {
		nx, ny = ny, nx
	}
	return nx, ny, nz, nil
}

// Point maps a single native point forward.
func (a AxisMap) Point(x, y, z float64) (float64, float64, float64) {
	if a.SwapXY {
		x, y = y, x
	}
	return a.SignX * x, a.SignY * y, a.SignZ * z
}

func (a AxisMap) check(x, y, z []float64) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if len(y) != len(x) {
		return errors.DataShapeError("y samples", len(y), len(x))
	}
	if len(z) != len(x) {
		return errors.DataShapeError("z samples", len(z), len(x))
	}
	return nil
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = s * e
	}
	return out
}
