// Secondary (M2) mirror surface corrector
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"mirrorsim/pkg/config"
	"mirrorsim/pkg/cotransform"
	"mirrorsim/pkg/table"
)

// M2 FEA table columns.
const (
	m2ColX = iota
	m2ColY
	m2ColZenith
	m2ColHorizon
	m2ColTz
	m2ColTr
	m2FEACols
)

// M2 is the secondary mirror: one surface, one FEA table carrying both the
// gravity and the thermal influence of every grid sample.
type M2 struct {
	name  string
	geom  Geometry
	store *tableStore
}

func newM2(sec config.MirrorSection, store *tableStore) (*M2, error) {
	geom, err := geometryFor(sec, "m2")
	if err != nil {
		return nil, err
	}
	return &M2{name: sec.Name, geom: geom, store: store}, nil
}

func (m *M2) Name() string               { return m.name }
func (m *M2) Geometry() Geometry         { return m.geom }
func (m *M2) Frame() cotransform.AxisMap { return cotransform.M2ToZemax }

// tables loads the FEA and grid tables and checks they agree.
func (m *M2) tables() (fea, grid *table.Table, err error) {
	if fea, err = m.store.influence(config.RoleFEA); err != nil {
		return nil, nil, err
	}
	if err = fea.RequireShape(-1, m2FEACols); err != nil {
		return nil, nil, err
	}
	if grid, err = m.store.plain(config.RoleGrid); err != nil {
		return nil, nil, err
	}
	if err = grid.RequireShape(-1, 2); err != nil {
		return nil, nil, err
	}
	if err = sameRows(grid, fea); err != nil {
		return nil, nil, err
	}
	return fea, grid, nil
}

func (m *M2) field(grid *table.Table, z []float64) SurfaceField {
	return SurfaceField{
		X:         grid.Col(0),
		Y:         grid.Col(1),
		Z:         z,
		PosUnit:   Meter,
		ValueUnit: Micrometer,
	}
}

func (m *M2) PrintThrough(zenith, preCompElev float64) (SurfaceField, error) {
	fea, grid, err := m.tables()
	if err != nil {
		return SurfaceField{}, err
	}
	z := printThrough(fea.Col(m2ColZenith), fea.Col(m2ColHorizon), zenith, preCompElev)
	return m.field(grid, z), nil
}

// ThermalCorrection uses the axial and radial gradients only.
func (m *M2) ThermalCorrection(t Thermal) (SurfaceField, error) {
	fea, grid, err := m.tables()
	if err != nil {
		return SurfaceField{}, err
	}
	z := thermalSum(fea.Rows(),
		thermalTerm{t.Z, fea.Col(m2ColTz)},
		thermalTerm{t.R, fea.Col(m2ColTr)},
	)
	return m.field(grid, z), nil
}

func (m *M2) ActuatorForces() (*table.Table, error) {
	return m.store.plain(config.RoleForce)
}

// LUTForces fails with a configuration error unless lut_file is set.
func (m *M2) LUTForces(zenithDeg float64) ([]float64, error) {
	return m.store.lutForces(zenithDeg)
}

func (m *M2) Surfaces(field SurfaceField) ([]SubSurface, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	return []SubSurface{{Name: "m2", Geometry: m.geom, Field: field}}, nil
}
