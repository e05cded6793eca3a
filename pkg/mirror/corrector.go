// Surface corrector interface and shared table services
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"math"
	"sync"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/cotransform"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/lut"
	"mirrorsim/pkg/table"
)

// Thermal holds the temperature gradients of an observation. Each gradient
// is the ±2σ value spanning a 1°C differential. Mirrors ignore the terms
// their tables do not model.
type Thermal struct {
	Bulk float64
	X    float64
	Y    float64
	Z    float64
	R    float64
}

// SubSurface is one independently fitted optical surface of a mirror.
type SubSurface struct {
	Name     string
	Geometry Geometry
	Field    SurfaceField
}

// SurfaceCorrector produces the deformation of one mirror assembly from its
// reference tables. Fields are in the mirror's native frame with positions
// in meters and values in micrometers.
type SurfaceCorrector interface {
	// Name is the configured mirror name.
	Name() string
	// Geometry is the annulus enclosing every sub-surface.
	Geometry() Geometry
	// PrintThrough is the gravity deformation at zenith angle zenith
	// relative to the pre-compensated pose preCompElev. Both in radians.
	PrintThrough(zenith, preCompElev float64) (SurfaceField, error)
	// ThermalCorrection is the deformation for the gradients in t.
	ThermalCorrection(t Thermal) (SurfaceField, error)
	// ActuatorForces returns the actuator force table unmodified.
	ActuatorForces() (*table.Table, error)
	// LUTForces interpolates the force look-up table at zenithDeg.
	LUTForces(zenithDeg float64) ([]float64, error)
	// Frame maps native coordinates to the optics design frame.
	Frame() cotransform.AxisMap
	// Surfaces splits a field sampled on the mirror's grid into its
	// optical surfaces.
	Surfaces(field SurfaceField) ([]SubSurface, error)
}

// NewCorrector returns the corrector for the section's mirror kind.
func NewCorrector(sec config.MirrorSection, logger *log.Logger) (SurfaceCorrector, error) {
	store := newTableStore(sec, logger)
	var (
		c   SurfaceCorrector
		err error
	)
	switch sec.Kind {
	case config.KindM2:
		c, err = newM2(sec, store)
	case config.KindM1M3:
		c, err = newM1M3(sec, store)
	default:
		err = errors.ConfigurationError("kind", "unknown mirror kind "+sec.Kind)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// printThrough returns [z·cos θ + h·sin θ] − [z·cos θ0 + h·sin θ0].
func printThrough(z, h []float64, theta, theta0 float64) []float64 {
	c := math.Cos(theta) - math.Cos(theta0)
	s := math.Sin(theta) - math.Sin(theta0)
	out := make([]float64, len(z))
	for i := range out {
		out[i] = z[i]*c + h[i]*s
	}
	return out
}

// thermalTerm is one gradient and its per-sample influence.
type thermalTerm struct {
	gradient  float64
	influence []float64
}

// thermalSum returns Σ gradient·influence over terms.
func thermalSum(n int, terms ...thermalTerm) []float64 {
	out := make([]float64, n)
	for _, t := range terms {
		if t.gradient == 0 {
			continue
		}
		for i, v := range t.influence {
			out[i] += t.gradient * v
		}
	}
	return out
}

// tableStore loads a mirror's reference tables on first use and keeps
// them for the life of the corrector. Tables are read-only once loaded.
type tableStore struct {
	dir    table.Dir
	files  map[string]string
	skip   int
	logger *log.Logger

	mu     sync.Mutex
	tables map[string]*table.Table
}

func newTableStore(sec config.MirrorSection, logger *log.Logger) *tableStore {
	return &tableStore{
		dir:    table.Dir(sec.DataDir),
		files:  sec.Files,
		skip:   sec.SkipRows,
		logger: log.OrDiscard(logger),
		tables: make(map[string]*table.Table),
	}
}

// influence loads an FEA table, which carries header rows.
func (s *tableStore) influence(role string) (*table.Table, error) {
	return s.load(role, s.skip)
}

// plain loads a table without header rows.
func (s *tableStore) plain(role string) (*table.Table, error) {
	return s.load(role, 0)
}

func (s *tableStore) load(role string, skip int) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[role]; ok {
		return t, nil
	}
	name := s.files[role]
	if name == "" {
		return nil, errors.ConfigurationError(role+"_file", "no table configured")
	}
	t, err := s.dir.Load(name, skip)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{"role": role, "rows": t.Rows(), "cols": t.Cols()}).
		Debug("loaded " + s.dir.Path(name))
	s.tables[role] = t
	return t, nil
}

// lutForces interpolates the look-up table of the store.
func (s *tableStore) lutForces(zenithDeg float64) ([]float64, error) {
	t, err := s.plain(config.RoleLUT)
	if err != nil {
		return nil, err
	}
	l, err := lut.FromTable(t)
	if err != nil {
		return nil, err
	}
	return l.Forces(zenithDeg)
}

// sameRows checks that every table has the grid's sample count.
func sameRows(grid *table.Table, tables ...*table.Table) error {
	for _, t := range tables {
		if t.Rows() != grid.Rows() {
			return errors.DataShapeError("rows matching "+grid.Name(), t.Rows(), grid.Rows()).
				SetPath(t.Name())
		}
	}
	return nil
}

func geometryFor(sec config.MirrorSection, surface string) (Geometry, error) {
	a, ok := sec.Radii[surface]
	if !ok {
		return Geometry{}, errors.ConfigurationError(surface+"_outer_radius", "missing radii")
	}
	return NewGeometry(a.Inner, a.Outer)
}
