// Mirror surface pipeline: net surface, fit and grid export
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/metrics"
	"mirrorsim/pkg/rbf"
	"mirrorsim/pkg/zernike"
)

// Operation names reported to metrics.
const (
	OpNetSurface  = "net_surface"
	OpFitResidual = "fit_residual"
	OpExportGrid  = "export_grid"
	OpLUTForces   = "lut_force"
	OpRun         = "run"
)

// GeometryParams is the observing geometry of one request.
type GeometryParams struct {
	ZenithRad      float64
	PreCompElevRad float64
	Thermal        Thermal
}

// ParamsFromObservation converts a configured observation, in degrees, to
// GeometryParams.
func ParamsFromObservation(obs config.Observation) GeometryParams {
	return GeometryParams{
		ZenithRad:      obs.ZenithAngleDeg * math.Pi / 180,
		PreCompElevRad: obs.PreCompElevationDeg * math.Pi / 180,
		Thermal: Thermal{
			Bulk: obs.TBulk,
			X:    obs.TxGrad,
			Y:    obs.TyGrad,
			Z:    obs.TzGrad,
			R:    obs.TrGrad,
		},
	}
}

// Residual is the fitted residual of one sub-surface. Field is in the
// optics design frame with positions in meters and values in micrometers.
type Residual struct {
	Surface      string
	Geometry     Geometry
	Field        SurfaceField
	Coefficients zernike.Coefficients
	// RMS of Field.Z in micrometers.
	RMS float64
}

// Pipeline runs the shared processing chain for one mirror. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	Corrector SurfaceCorrector
	Logger    *log.Logger
	Metrics   *metrics.MirrorMetrics
	// Workers is the resampling parallelism; zero means runtime.NumCPU().
	Workers int
}

// NewPipeline builds the corrector for sec and wraps it in a Pipeline.
func NewPipeline(sec config.MirrorSection, workers int, logger *log.Logger, mm *metrics.MirrorMetrics) (*Pipeline, error) {
	logger = log.OrDiscard(logger).WithPrefix("mirror." + sec.Name).With(log.Fields{"kind": sec.Kind})
	c, err := NewCorrector(sec, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Corrector: c, Logger: logger, Metrics: mm, Workers: workers}, nil
}

func (p *Pipeline) logger() *log.Logger { return log.OrDiscard(p.Logger) }

// ComputeNetSurface returns print-through plus thermal correction in the
// mirror's native frame.
func (p *Pipeline) ComputeNetSurface(ctx context.Context, gp GeometryParams) (field SurfaceField, err error) {
	defer func() { p.Metrics.Done(OpNetSurface, err) }()
	defer p.Metrics.Stage(metrics.StageNetSurface)()

	if err := ctx.Err(); err != nil {
		return SurfaceField{}, cancelled(err)
	}
	pt, err := p.Corrector.PrintThrough(gp.ZenithRad, gp.PreCompElevRad)
	if err != nil {
		return SurfaceField{}, err
	}
	th, err := p.Corrector.ThermalCorrection(gp.Thermal)
	if err != nil {
		return SurfaceField{}, err
	}
	net, err := pt.Add(th)
	if err != nil {
		return SurfaceField{}, err
	}
	p.logger().WithFields(log.Fields{
		"samples": net.Len(),
		"zenith":  gp.ZenithRad,
	}).Info("net surface computed")
	return net, nil
}

// FitResidual moves field to the optics design frame, splits it into
// sub-surfaces and removes the first numTerms Zernike terms from each,
// with coordinates normalized by the sub-surface's outer radius.
func (p *Pipeline) FitResidual(ctx context.Context, field SurfaceField, numTerms int) (res []Residual, err error) {
	defer func() { p.Metrics.Done(OpFitResidual, err) }()
	if err := zernike.CheckTerms(numTerms); err != nil {
		return nil, err
	}
	defer p.Metrics.Stage(metrics.StageFit)()

	subs, err := p.Corrector.Surfaces(field)
	if err != nil {
		return nil, err
	}
	frame := p.Corrector.Frame()
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		x, y, z, err := frame.Forward(sub.Field.X, sub.Field.Y, sub.Field.Z)
		if err != nil {
			return nil, err
		}
		xn := make([]float64, len(x))
		yn := make([]float64, len(y))
		floats.ScaleTo(xn, 1/sub.Geometry.Outer, x)
		floats.ScaleTo(yn, 1/sub.Geometry.Outer, y)

		r, c, err := zernike.FitResidual(z, xn, yn, numTerms)
		if err != nil {
			if me, ok := err.(*errors.MirrorError); ok {
				me.SetContext("surface", sub.Name)
			}
			return nil, err
		}
		out := Residual{
			Surface:  sub.Name,
			Geometry: sub.Geometry,
			Field: SurfaceField{
				X: x, Y: y, Z: r,
				PosUnit:   sub.Field.PosUnit,
				ValueUnit: sub.Field.ValueUnit,
			},
			Coefficients: c,
			RMS:          zernike.RMS(r),
		}
		p.Metrics.SetResidual(p.Corrector.Name(), sub.Name, out.RMS, numTerms)
		p.logger().WithFields(log.Fields{
			"surface": sub.Name,
			"terms":   numTerms,
			"samples": len(r),
			"rms_um":  out.RMS,
		}).Info("residual fitted")
		res = append(res, out)
	}
	return res, nil
}

// ExportGridMap resamples a residual onto an (nx+4) x (ny+4) residue map
// in millimeters.
func (p *Pipeline) ExportGridMap(ctx context.Context, r Residual, nx, ny int) (m *gridmap.Map, err error) {
	defer func() { p.Metrics.Done(OpExportGrid, err) }()
	radii := r.Geometry.Millimeters()
	if _, err := gridmap.NewGrid(radii, nx, ny); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	field, err := r.Field.ToMillimeters()
	if err != nil {
		return nil, err
	}

	stop := p.Metrics.Stage(metrics.StageInterpolant)
	interp, err := rbf.New(field.X, field.Y, field.Z)
	stop()
	if err != nil {
		return nil, err
	}

	stop = p.Metrics.Stage(metrics.StageResample)
	m, err = gridmap.Resample(ctx, interp, radii, nx, ny, gridmap.Options{
		Workers: p.Workers,
		Logger:  p.Logger,
	})
	stop()
	if err != nil {
		return nil, err
	}
	p.Metrics.SetGrid(p.Corrector.Name(), r.Surface, len(m.Nodes), m.ZeroFilled)
	p.logger().WithFields(log.Fields{
		"surface":     r.Surface,
		"nodes":       len(m.Nodes),
		"zero_filled": m.ZeroFilled,
		"epsilon_mm":  interp.Epsilon(),
	}).Info("residue map resampled")
	return m, nil
}

// LUTForces interpolates the actuator forces at zenithDeg.
func (p *Pipeline) LUTForces(zenithDeg float64) (f []float64, err error) {
	defer func() { p.Metrics.Done(OpLUTForces, err) }()
	return p.Corrector.LUTForces(zenithDeg)
}

func cancelled(err error) error {
	return errors.Wrap(err, errors.ErrRuntime, "request cancelled")
}
