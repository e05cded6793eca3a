// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package lut interpolates actuator forces from a look-up table indexed by
// a scalar ruler (zenith angle in degrees in the shipped tables).
//
// The table's first row is the ruler and must be strictly increasing. Each
// following row holds one actuator's force at every ruler step. Queries
// outside the ruler are clamped to the first or last column.
package lut

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/table"
)

// Table is a validated look-up table.
type Table struct {
	ruler  []float64
	forces *mat.Dense // actuators x steps
}

// NewTable validates ruler and builds a table with one forces row per
// actuator. Every forces row must have one value per ruler step.
func NewTable(ruler []float64, forces [][]float64) (*Table, error) {
	if err := checkRuler(ruler); err != nil {
		return nil, err
	}
	if len(forces) == 0 {
		return nil, errors.DataShapeErrorf("look-up table has no actuator rows")
	}
	data := make([]float64, 0, len(forces)*len(ruler))
	for i, row := range forces {
		if len(row) != len(ruler) {
			return nil, errors.DataShapeError("look-up table actuator row", len(row), len(ruler)).
				SetContext("row", i+1)
		}
		data = append(data, row...)
	}
	return &Table{
		ruler:  append([]float64(nil), ruler...),
		forces: mat.NewDense(len(forces), len(ruler), data),
	}, nil
}

// FromTable builds a look-up table from a loaded reference table whose
// first row is the ruler.
func FromTable(t *table.Table) (*Table, error) {
	if t.Rows() < 2 {
		return nil, errors.DataShapeError("look-up table rows", t.Rows(), 2).SetPath(t.Name())
	}
	ruler := t.Row(0)
	if err := checkRuler(ruler); err != nil {
		return nil, err.SetPath(t.Name())
	}
	forces := mat.DenseCopyOf(t.Dense().(*mat.Dense).Slice(1, t.Rows(), 0, t.Cols()))
	return &Table{ruler: ruler, forces: forces}, nil
}

// Load reads a look-up table file. The ruler is the first line.
func Load(path string) (*Table, error) {
	t, err := table.Load(path, 0)
	if err != nil {
		return nil, err
	}
	return FromTable(t)
}

func checkRuler(ruler []float64) *errors.MirrorError {
	if len(ruler) == 0 {
		return errors.DataShapeErrorf("look-up table ruler is empty")
	}
	for i := 1; i < len(ruler); i++ {
		// Negated so that NaN steps are rejected too.
		if !(ruler[i]-ruler[i-1] > 0) {
			return errors.MalformedTableError(i, ruler[i-1], ruler[i])
		}
	}
	return nil
}

// Actuators returns the number of actuator rows.
func (t *Table) Actuators() int {
	r, _ := t.forces.Dims()
	return r
}

// Ruler returns a copy of the ruler.
func (t *Table) Ruler() []float64 {
	return append([]float64(nil), t.ruler...)
}

// Weights returns the bracketing columns for query and their weights.
// Clamped queries return lo == hi with weights (1, 0). A NaN query returns
// NaN weights, so Interpolate yields NaN forces; Forces rejects it instead.
func (t *Table) Weights(query float64) (lo, hi int, wLo, wHi float64) {
	last := len(t.ruler) - 1
	switch {
	case query >= t.ruler[last]:
		return last, last, 1, 0
	case query <= t.ruler[0]:
		return 0, 0, 1, 0
	case math.IsNaN(query):
		return 0, 0, math.NaN(), 0
	}
	// Last ruler entry <= query; the clamps above guarantee lo < last.
	lo = 0
	for lo+1 < last && t.ruler[lo+1] <= query {
		lo++
	}
	hi = lo + 1
	wHi = (query - t.ruler[lo]) / (t.ruler[hi] - t.ruler[lo])
	return lo, hi, 1 - wHi, wHi
}

// Interpolate returns one force per actuator at query.
func (t *Table) Interpolate(query float64) []float64 {
	lo, hi, wLo, wHi := t.Weights(query)
	out := mat.Col(nil, lo, t.forces)
	if lo == hi {
		if wLo != 1 {
			for i := range out {
				out[i] *= wLo
			}
		}
		return out
	}
	upper := mat.Col(nil, hi, t.forces)
	for i := range out {
		out[i] = wLo*out[i] + wHi*upper[i]
	}
	return out
}

// Forces is Interpolate for untrusted queries: NaN is a CONFIGURATION
// error. Infinite queries clamp like any other out-of-range value.
func (t *Table) Forces(query float64) ([]float64, error) {
	if math.IsNaN(query) {
		return nil, errors.ConfigurationError("look-up query", "must be a number, got NaN")
	}
	return t.Interpolate(query), nil
}
