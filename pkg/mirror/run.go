// Full pipeline run writing residue maps, coefficients and plots
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mirror

import (
	"context"
	"os"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/metrics"
	"mirrorsim/pkg/resplot"
	"mirrorsim/pkg/zernike"
)

// Request is one full simulation: geometry in, artifacts out.
type Request struct {
	Params   GeometryParams
	NumTerms int
	GridN    int
	Output   config.OutputPaths
}

// RequestFromConfig builds the request a mirror section and observation
// describe.
func RequestFromConfig(sec config.MirrorSection, obs config.Observation) Request {
	return Request{
		Params:   ParamsFromObservation(obs),
		NumTerms: sec.NumTerms,
		GridN:    sec.GridN,
		Output:   sec.Output,
	}
}

// SurfaceResult lists what Run produced for one sub-surface. Paths are
// empty for artifacts that were not requested.
type SurfaceResult struct {
	Surface      string               `json:"surface"`
	ResidueMap   string               `json:"residue_map,omitempty"`
	ZernikeFile  string               `json:"zernike_file,omitempty"`
	Plot         string               `json:"plot,omitempty"`
	Coefficients zernike.Coefficients `json:"coefficients"`
	RMS          float64              `json:"rms_um"`
	NumX         int                  `json:"num_x"`
	NumY         int                  `json:"num_y"`
	ZeroFilled   int                  `json:"zero_filled"`
}

// Result is the outcome of Run.
type Result struct {
	Mirror   string          `json:"mirror"`
	Surfaces []SurfaceResult `json:"surfaces"`
}

// Run computes the net surface, fits and resamples every sub-surface, and
// writes the configured artifacts. Parameters are checked before any table
// is read.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *Result, err error) {
	defer func() { p.Metrics.Done(OpRun, err) }()
	if err := zernike.CheckTerms(req.NumTerms); err != nil {
		return nil, err
	}
	if _, err := gridmap.NewGrid(p.Corrector.Geometry().Millimeters(), req.GridN, req.GridN); err != nil {
		return nil, err
	}

	net, err := p.ComputeNetSurface(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	residuals, err := p.FitResidual(ctx, net, req.NumTerms)
	if err != nil {
		return nil, err
	}

	result = &Result{Mirror: p.Corrector.Name()}
	for _, r := range residuals {
		m, err := p.ExportGridMap(ctx, r, req.GridN, req.GridN)
		if err != nil {
			return nil, err
		}
		sr, err := p.write(req.Output, r, m)
		if err != nil {
			return nil, err
		}
		result.Surfaces = append(result.Surfaces, sr)
	}
	return result, nil
}

// write stores the artifacts of one sub-surface.
func (p *Pipeline) write(out config.OutputPaths, r Residual, m *gridmap.Map) (SurfaceResult, error) {
	defer p.Metrics.Stage(metrics.StageExport)()
	sr := SurfaceResult{
		Surface:      r.Surface,
		ResidueMap:   out.Path(out.ResidueMap, r.Surface),
		ZernikeFile:  out.Path(out.Zernike, r.Surface),
		Plot:         out.Path(out.Plot, r.Surface),
		Coefficients: r.Coefficients,
		RMS:          r.RMS,
		NumX:         m.NumX,
		NumY:         m.NumY,
		ZeroFilled:   m.ZeroFilled,
	}

	if out.Dir != "" {
		if err := os.MkdirAll(out.Dir, 0o755); err != nil {
			return sr, errors.IOError(out.Dir, err)
		}
	}
	if sr.ResidueMap != "" {
		if err := gridmap.WriteFile(sr.ResidueMap, m); err != nil {
			return sr, err
		}
	}
	if sr.ZernikeFile != "" {
		if err := zernike.WriteCoefficients(sr.ZernikeFile, r.Coefficients); err != nil {
			return sr, err
		}
	}
	if sr.Plot != "" {
		field, err := r.Field.ToMillimeters()
		if err != nil {
			return sr, err
		}
		samples := resplot.Samples{X: field.X, Y: field.Y, Z: field.Z}
		outer := r.Geometry.Millimeters().Outer
		if sr.ResidueMap != "" {
			err = resplot.RenderFile(sr.Plot, sr.ResidueMap, samples, outer)
		} else {
			err = resplot.Render(sr.Plot, m, samples, outer)
		}
		if err != nil {
			return sr, err
		}
	}
	p.logger().WithFields(log.Fields{
		"surface":     r.Surface,
		"residue_map": sr.ResidueMap,
		"zernike":     sr.ZernikeFile,
		"plot":        sr.Plot,
	}).Info("artifacts written")
	return sr, nil
}
