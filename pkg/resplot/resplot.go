// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package resplot renders residue maps for visual inspection: the grid
// handed to the optics program next to the scattered residual it was
// resampled from, both colour-mapped in nanometers.
package resplot

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"mirrorsim/pkg/atomicfile"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
)

// mmToNm converts residual values in mm to the plotted unit.
const mmToNm = 1e6

// Samples is a scattered residual: positions and values in mm.
type Samples struct {
	X, Y, Z []float64
}

// Panels builds the two plots. m may be nil, in which case the grid panel
// is left empty.
func Panels(m *gridmap.Map, s Samples, outerMm float64) ([]*plot.Plot, error) {
	if len(s.Y) != len(s.X) || len(s.Z) != len(s.X) {
		return nil, errors.DataShapeErrorf("samples: x=%d y=%d z=%d", len(s.X), len(s.Y), len(s.Z))
	}
	if !(outerMm > 0) {
		return nil, errors.ConfigurationError("outer radius", "must be positive")
	}

	grid := newPanel("grid input to ZEMAX (nm)", outerMm)
	grid.Y.Label.Text = "y (mm)"
	if m != nil {
		xys := make(plotter.XYs, 0, len(m.Nodes))
		vals := make([]float64, 0, len(m.Nodes))
		for jj := 0; jj < m.NumX; jj++ {
			for ii := 0; ii < m.NumY; ii++ {
				x, y := m.Position(jj, ii)
				xys = append(xys, plotter.XY{X: x, Y: y})
				vals = append(vals, m.At(jj, ii).Value*mmToNm)
			}
		}
		if err := addScatter(grid, xys, vals); err != nil {
			return nil, err
		}
	}

	fea := newPanel("Surface map on FEA grid (nm)", outerMm)
	xys := make(plotter.XYs, len(s.X))
	vals := make([]float64, len(s.X))
	for i := range s.X {
		xys[i] = plotter.XY{X: s.X[i], Y: s.Y[i]}
		vals[i] = s.Z[i] * mmToNm
	}
	if err := addScatter(fea, xys, vals); err != nil {
		return nil, err
	}
	return []*plot.Plot{grid, fea}, nil
}

func newPanel(title string, outer float64) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (mm)"
	p.X.Min, p.X.Max = -outer, outer
	p.Y.Min, p.Y.Max = -outer, outer
	return p
}

func addScatter(p *plot.Plot, xys plotter.XYs, vals []float64) error {
	if len(xys) == 0 {
		return nil
	}
	cm := colorMap(vals)
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, errors.ErrDataShape, "scatter data")
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c, err := cm.At(vals[i])
		if err != nil {
			c = color.Gray{Y: 128}
		}
		return draw.GlyphStyle{Color: c, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
	}
	p.Add(sc)
	p.Title.Text += fmt.Sprintf(" [%.3g, %.3g]", cm.Min(), cm.Max())
	return nil
}

// colorMap spans the finite range of vals.
func colorMap(vals []float64) palette.ColorMap {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		lo, hi = 0, 0
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

// Render writes the side-by-side panels to path. The image format follows
// the extension (png, svg, pdf, ...).
func Render(path string, m *gridmap.Map, s Samples, outerMm float64) error {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		return errors.ConfigurationError("plot file", "missing image extension in "+path)
	}
	plots, err := Panels(m, s, outerMm)
	if err != nil {
		return err
	}

	c, err := draw.NewFormattedCanvas(10*vg.Inch, 5*vg.Inch, format)
	if err != nil {
		return errors.ConfigurationError("plot file", err.Error())
	}
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 5, PadY: vg.Millimeter * 2}
	canvases := plot.Align([][]*plot.Plot{plots}, tiles, draw.New(c))
	for i, p := range plots {
		p.Draw(canvases[0][i])
	}

	return atomicfile.WriteFile(path, func(w io.Writer) error {
		if _, err := c.WriteTo(w); err != nil {
			return errors.IOError(path, err)
		}
		return nil
	})
}

// RenderFile plots the residue map stored at mapPath, as read back by the
// optics program, next to the samples it was resampled from.
func RenderFile(path, mapPath string, s Samples, outerMm float64) error {
	m, err := gridmap.ReadFile(mapPath)
	if err != nil {
		return err
	}
	return Render(path, m, s, outerMm)
}
