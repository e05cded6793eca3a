// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package gridmap resamples a scattered mirror residual onto the regular
// grid read by the optics design program, with finite-difference
// derivatives, and reads and writes that grid residue map format.
//
// The grid is padded by two nodes on each axis. Node (jj, ii) sits at
// x = minX + ii*PitchX, y = -(minY + jj*PitchY): rows run from +y to -y
// because the consumer reads the (-x, -y) corner first.
package gridmap

import (
	"fmt"
	"math"

	"mirrorsim/pkg/errors"
)

// Padding is the number of extra nodes added along each axis.
const Padding = 4

// epsilonFraction scales the finite-difference step to the grid pitch.
const epsilonFraction = 1e-4

// Radii is the clear aperture annulus in the grid's length unit.
type Radii struct {
	Inner float64
	Outer float64
}

// Validate checks 0 <= Inner < Outer.
func (r Radii) Validate() error {
	if !(r.Inner >= 0) || !(r.Outer > r.Inner) {
		return errors.ConfigurationError("radii",
			fmt.Sprintf("need 0 <= inner < outer, got inner=%g outer=%g", r.Inner, r.Outer))
	}
	return nil
}

// Grid is the layout of a residue map.
type Grid struct {
	NumX, NumY     int
	PitchX, PitchY float64
	MinX, MinY     float64
	// ExtFr is the radial extension factor applied to the annulus so that
	// the padding nodes just outside the aperture still carry values.
	ExtFr float64
	// Epsilon is the finite-difference step.
	Epsilon float64
	Radii   Radii
}

// NewGrid lays out an (nx+4) x (ny+4) grid covering the outer diameter of
// radii. nx and ny must be at least 2.
func NewGrid(radii Radii, nx, ny int) (Grid, error) {
	if nx < 2 || ny < 2 {
		return Grid{}, errors.ConfigurationError("grid size",
			fmt.Sprintf("nx and ny must be >= 2, got %d x %d", nx, ny))
	}
	if err := radii.Validate(); err != nil {
		return Grid{}, err
	}

	g := Grid{NumX: nx + Padding, NumY: ny + Padding, Radii: radii}
	extFx := float64(g.NumX-1) / float64(nx-1)
	extFy := float64(g.NumY-1) / float64(ny-1)
	g.ExtFr = math.Sqrt(extFx * extFy)

	g.PitchX = radii.Outer * 2 * extFx / float64(g.NumX-1)
	g.PitchY = radii.Outer * 2 * extFy / float64(g.NumY-1)
	g.MinX = -0.5 * float64(g.NumX-1) * g.PitchX
	g.MinY = -0.5 * float64(g.NumY-1) * g.PitchY
	g.Epsilon = epsilonFraction * math.Min(g.PitchX, g.PitchY)
	return g, nil
}

// Position returns the coordinates of node (jj, ii).
func (g Grid) Position(jj, ii int) (x, y float64) {
	x = g.MinX + float64(ii)*g.PitchX
	y = g.MinY + float64(jj)*g.PitchY
	return x, -y
}

// Inside reports whether (x, y) lies in the extended annulus where the
// surface is evaluated.
func (g Grid) Inside(x, y float64) bool {
	r := math.Hypot(x, y)
	return !(r < g.Radii.Inner/g.ExtFr || r > g.Radii.Outer*g.ExtFr)
}

// Node is one residue map sample: value and derivatives.
type Node struct {
	Value float64
	DX    float64
	DY    float64
	DXDY  float64
}

// Map is a grid residue map. Nodes are row-major: outer index jj over
// NumX, inner index ii over NumY.
type Map struct {
	NumX, NumY     int
	PitchX, PitchY float64
	Nodes          []Node
	// ZeroFilled counts nodes outside the annulus. Set by Resample only.
	ZeroFilled int
}

// Index returns the position of node (jj, ii) in Nodes.
func (m *Map) Index(jj, ii int) int {
	return jj*m.NumY + ii
}

// At returns node (jj, ii).
func (m *Map) At(jj, ii int) Node {
	return m.Nodes[m.Index(jj, ii)]
}

// Grid returns the layout implied by the map's header. Radii are unknown
// and left zero.
func (m *Map) Grid() Grid {
	return Grid{
		NumX:   m.NumX,
		NumY:   m.NumY,
		PitchX: m.PitchX,
		PitchY: m.PitchY,
		MinX:   -0.5 * float64(m.NumX-1) * m.PitchX,
		MinY:   -0.5 * float64(m.NumY-1) * m.PitchY,
	}
}

// Position returns the coordinates of node (jj, ii).
func (m *Map) Position(jj, ii int) (x, y float64) {
	return m.Grid().Position(jj, ii)
}
