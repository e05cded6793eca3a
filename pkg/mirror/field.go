// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package mirror computes the net deformation of a telescope mirror for an
// observing geometry, removes its low-order Zernike content, and exports
// the residual as a grid residue map for the optics design program.
//
// The mirror-specific part is the SurfaceCorrector: it knows which
// reference tables describe the mirror and how to combine them. Everything
// downstream of it (transform, fit, resampling, export) is shared and
// driven by Pipeline.
package mirror

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"mirrorsim/pkg/errors"
)

// Unit is a length unit tag.
type Unit string

const (
	Meter      Unit = "m"
	Millimeter Unit = "mm"
	Micrometer Unit = "um"
)

// toMillimeter is the factor converting each unit to millimeters.
var toMillimeter = map[Unit]float64{
	Meter:      1e3,
	Millimeter: 1,
	Micrometer: 1e-3,
}

// duplicateTolerance is the relative distance under which two samples are
// considered the same point.
const duplicateTolerance = 1e-12

// SurfaceField is a scattered scalar field: Z[i] is the deformation at
// (X[i], Y[i]).
type SurfaceField struct {
	X, Y, Z   []float64
	PosUnit   Unit
	ValueUnit Unit
}

// Len returns the number of samples.
func (f SurfaceField) Len() int { return len(f.X) }

// Validate checks that the slices have equal length, the units are known
// and no two samples share a position.
func (f SurfaceField) Validate() error {
	if err := f.checkLengths(); err != nil {
		return err
	}
	for _, u := range []Unit{f.PosUnit, f.ValueUnit} {
		if _, ok := toMillimeter[u]; !ok {
			return errors.ConfigurationError("unit", "unknown length unit "+string(u))
		}
	}
	return f.checkDuplicates()
}

func (f SurfaceField) checkLengths() error {
	if len(f.Y) != len(f.X) {
		return errors.DataShapeError("field y samples", len(f.Y), len(f.X))
	}
	if len(f.Z) != len(f.X) {
		return errors.DataShapeError("field values", len(f.Z), len(f.X))
	}
	return nil
}

func (f SurfaceField) checkDuplicates() error {
	n := len(f.X)
	if n < 2 {
		return nil
	}
	scale := math.Max(floats.Max(f.X)-floats.Min(f.X), floats.Max(f.Y)-floats.Min(f.Y))
	tol := duplicateTolerance * math.Max(scale, 1)

	xs := append([]float64(nil), f.X...)
	idx := make([]int, n)
	floats.Argsort(xs, idx)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n && xs[b]-xs[a] <= tol; b++ {
			i, j := idx[a], idx[b]
			if math.Abs(f.Y[i]-f.Y[j]) <= tol {
				return errors.DataShapeErrorf("samples %d and %d share position (%g, %g)",
					min(i, j), max(i, j), f.X[i], f.Y[i])
			}
		}
	}
	return nil
}

// Add returns the elementwise sum f + g. Both fields must sample the same
// points in the same units; the result keeps f's positions.
func (f SurfaceField) Add(g SurfaceField) (SurfaceField, error) {
	if g.Len() != f.Len() || len(g.Z) != len(f.Z) {
		return SurfaceField{}, errors.DataShapeError("summed field samples", len(g.Z), len(f.Z))
	}
	if g.PosUnit != f.PosUnit || g.ValueUnit != f.ValueUnit {
		return SurfaceField{}, errors.ConfigurationError("unit",
			"cannot add fields in "+string(g.ValueUnit)+" and "+string(f.ValueUnit))
	}
	z := append([]float64(nil), f.Z...)
	floats.Add(z, g.Z)
	return SurfaceField{X: f.X, Y: f.Y, Z: z, PosUnit: f.PosUnit, ValueUnit: f.ValueUnit}, nil
}

// ToMillimeters returns a copy of f with positions and values in mm.
func (f SurfaceField) ToMillimeters() (SurfaceField, error) {
	ps, ok := toMillimeter[f.PosUnit]
	vs, ok2 := toMillimeter[f.ValueUnit]
	if !ok || !ok2 {
		return SurfaceField{}, errors.ConfigurationError("unit",
			"unknown length unit in "+string(f.PosUnit)+"/"+string(f.ValueUnit))
	}
	out := SurfaceField{
		X:         make([]float64, len(f.X)),
		Y:         make([]float64, len(f.Y)),
		Z:         make([]float64, len(f.Z)),
		PosUnit:   Millimeter,
		ValueUnit: Millimeter,
	}
	floats.ScaleTo(out.X, ps, f.X)
	floats.ScaleTo(out.Y, ps, f.Y)
	floats.ScaleTo(out.Z, vs, f.Z)
	return out, nil
}

// subset returns the samples at idx.
func (f SurfaceField) subset(idx []int) SurfaceField {
	out := SurfaceField{
		X:         make([]float64, len(idx)),
		Y:         make([]float64, len(idx)),
		Z:         make([]float64, len(idx)),
		PosUnit:   f.PosUnit,
		ValueUnit: f.ValueUnit,
	}
	for k, i := range idx {
		out.X[k], out.Y[k], out.Z[k] = f.X[i], f.Y[i], f.Z[i]
	}
	return out
}
