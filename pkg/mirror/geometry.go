// Clear aperture geometry of mirror surfaces
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"fmt"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
)

// Geometry is the clear aperture annulus of a mirror surface in meters.
type Geometry struct {
	Inner float64
	Outer float64
}

// NewGeometry checks 0 <= inner < outer.
func NewGeometry(inner, outer float64) (Geometry, error) {
	if !(inner >= 0) || !(outer > inner) {
		return Geometry{}, errors.ConfigurationError("radii",
			fmt.Sprintf("need 0 <= inner < outer, got inner=%g outer=%g m", inner, outer))
	}
	return Geometry{Inner: inner, Outer: outer}, nil
}

// Millimeters returns the annulus in mm, the unit of the residue map.
func (g Geometry) Millimeters() gridmap.Radii {
	return gridmap.Radii{Inner: g.Inner * 1e3, Outer: g.Outer * 1e3}
}
