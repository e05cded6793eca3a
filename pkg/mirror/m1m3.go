// Primary/tertiary (M1M3) mirror surface corrector
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"mirrorsim/pkg/config"
	"mirrorsim/pkg/cotransform"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/table"
)

// Column of the axial displacement in the zenith and horizon tables.
const m1m3ColDz = 2

// M1M3 thermal table columns.
const (
	m1m3ColBulk = iota + 2
	m1m3ColXGrad
	m1m3ColYGrad
	m1m3ColZGrad
	m1m3ColRGrad
	m1m3ThermalCols
)

// Grid table columns: surface id, x, y.
const (
	m1m3GridID = iota
	m1m3GridX
	m1m3GridY
	m1m3GridCols
)

// surfaceIDs maps the grid's surface id column to sub-surface names.
var surfaceIDs = map[float64]string{1: "m1", 3: "m3"}

// M1M3 is the combined primary/tertiary mirror: one glass blank carrying
// two optical surfaces that are fitted and exported separately.
type M1M3 struct {
	name  string
	geom  Geometry
	m1    Geometry
	m3    Geometry
	store *tableStore
}

func newM1M3(sec config.MirrorSection, store *tableStore) (*M1M3, error) {
	m1, err := geometryFor(sec, "m1")
	if err != nil {
		return nil, err
	}
	m3, err := geometryFor(sec, "m3")
	if err != nil {
		return nil, err
	}
	geom, err := NewGeometry(min(m1.Inner, m3.Inner), max(m1.Outer, m3.Outer))
	if err != nil {
		return nil, err
	}
	return &M1M3{name: sec.Name, geom: geom, m1: m1, m3: m3, store: store}, nil
}

func (m *M1M3) Name() string               { return m.name }
func (m *M1M3) Geometry() Geometry         { return m.geom }
func (m *M1M3) Frame() cotransform.AxisMap { return cotransform.M1M3ToZemax }

func (m *M1M3) grid() (*table.Table, error) {
	grid, err := m.store.plain(config.RoleGrid)
	if err != nil {
		return nil, err
	}
	if err := grid.RequireShape(-1, m1m3GridCols); err != nil {
		return nil, err
	}
	return grid, nil
}

// influence loads the FEA table for role and checks it against the grid.
func (m *M1M3) influence(role string, minCols int) (fea, grid *table.Table, err error) {
	if grid, err = m.grid(); err != nil {
		return nil, nil, err
	}
	if fea, err = m.store.influence(role); err != nil {
		return nil, nil, err
	}
	if err = fea.RequireShape(-1, minCols); err != nil {
		return nil, nil, err
	}
	if err = sameRows(grid, fea); err != nil {
		return nil, nil, err
	}
	return fea, grid, nil
}

func (m *M1M3) field(grid *table.Table, z []float64) SurfaceField {
	return SurfaceField{
		X:         grid.Col(m1m3GridX),
		Y:         grid.Col(m1m3GridY),
		Z:         z,
		PosUnit:   Meter,
		ValueUnit: Micrometer,
	}
}

// PrintThrough combines the zenith- and horizon-pointing deformations.
func (m *M1M3) PrintThrough(zenith, preCompElev float64) (SurfaceField, error) {
	zen, grid, err := m.influence(config.RoleZenith, m1m3ColDz+1)
	if err != nil {
		return SurfaceField{}, err
	}
	hor, _, err := m.influence(config.RoleHorizon, m1m3ColDz+1)
	if err != nil {
		return SurfaceField{}, err
	}
	z := printThrough(zen.Col(m1m3ColDz), hor.Col(m1m3ColDz), zenith, preCompElev)
	return m.field(grid, z), nil
}

func (m *M1M3) ThermalCorrection(t Thermal) (SurfaceField, error) {
	th, grid, err := m.influence(config.RoleThermal, m1m3ThermalCols)
	if err != nil {
		return SurfaceField{}, err
	}
	z := thermalSum(th.Rows(),
		thermalTerm{t.Bulk, th.Col(m1m3ColBulk)},
		thermalTerm{t.X, th.Col(m1m3ColXGrad)},
		thermalTerm{t.Y, th.Col(m1m3ColYGrad)},
		thermalTerm{t.Z, th.Col(m1m3ColZGrad)},
		thermalTerm{t.R, th.Col(m1m3ColRGrad)},
	)
	return m.field(grid, z), nil
}

func (m *M1M3) ActuatorForces() (*table.Table, error) {
	return m.store.plain(config.RoleForce)
}

func (m *M1M3) LUTForces(zenithDeg float64) ([]float64, error) {
	return m.store.lutForces(zenithDeg)
}

// Surfaces splits field by the grid's surface id column. field must be
// sampled on the grid, in grid order.
func (m *M1M3) Surfaces(field SurfaceField) ([]SubSurface, error) {
	if err := field.checkLengths(); err != nil {
		return nil, err
	}
	grid, err := m.grid()
	if err != nil {
		return nil, err
	}
	if field.Len() != grid.Rows() {
		return nil, errors.DataShapeError("field samples", field.Len(), grid.Rows()).SetPath(grid.Name())
	}

	idx := map[string][]int{}
	for i, id := range grid.Col(m1m3GridID) {
		name, ok := surfaceIDs[id]
		if !ok {
			return nil, errors.DataShapeErrorf("row %d: unknown surface id %g", i+1, id).SetPath(grid.Name())
		}
		idx[name] = append(idx[name], i)
	}

	subs := make([]SubSurface, 0, 2)
	for _, s := range []struct {
		name string
		geom Geometry
	}{{"m1", m.m1}, {"m3", m.m3}} {
		if len(idx[s.name]) == 0 {
			return nil, errors.DataShapeErrorf("no %s samples", s.name).SetPath(grid.Name())
		}
		sub := field.subset(idx[s.name])
		if err := sub.Validate(); err != nil {
			return nil, err
		}
		subs = append(subs, SubSurface{Name: s.name, Geometry: s.geom, Field: sub})
	}
	return subs, nil
}
