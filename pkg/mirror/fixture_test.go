package mirror

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"mirrorsim/pkg/config"
)

// annulus returns rings x spokes samples between inner and outer.
func annulus(inner, outer float64, rings, spokes int) (x, y []float64) {
	for i := 0; i < rings; i++ {
		r := inner + (outer-inner)*float64(i)/float64(rings-1)
		for k := 0; k < spokes; k++ {
			// Stagger alternate rings so no two rings line up.
			a := 2 * math.Pi * (float64(k) + 0.5*float64(i%2)) / float64(spokes)
			x = append(x, r*math.Cos(a))
			y = append(y, r*math.Sin(a))
		}
	}
	return x, y
}

func writeTable(t *testing.T, path, header string, cols ...[]float64) {
	t.Helper()
	var sb strings.Builder
	if header != "" {
		sb.WriteString(header)
		sb.WriteByte('\n')
	}
	for i := range cols[0] {
		for j, c := range cols {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(c[i], 'g', -1, 64))
		}
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mapXY(x, y []float64, f func(x, y float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = f(x[i], y[i])
	}
	return out
}

// Smooth synthetic influence functions, in micrometers for positions in m.
func zenithResponse(x, y float64) float64  { return 0.2*x*x - 0.1*y*y + 0.05*x*y + 0.01 }
func horizonResponse(x, y float64) float64 { return 0.15*y - 0.04*x*x*y + 0.02*x }
func axialResponse(x, y float64) float64   { return 0.03 * (x*x + y*y) }
func radialResponse(x, y float64) float64  { return 0.01*x*x*x - 0.02*y }

type m2Fixture struct {
	sec  config.MirrorSection
	x, y []float64
}

func newM2Fixture(t *testing.T) m2Fixture {
	t.Helper()
	dir := t.TempDir()
	x, y := annulus(0.9, 1.71, 8, 32)
	writeTable(t, filepath.Join(dir, "M2_GT_FEA.txt"), "x y zdz hdz tzdz trdz",
		x, y,
		mapXY(x, y, zenithResponse),
		mapXY(x, y, horizonResponse),
		mapXY(x, y, axialResponse),
		mapXY(x, y, radialResponse),
	)
	writeTable(t, filepath.Join(dir, "M2_1um_grid.DAT"), "", x, y)
	writeTable(t, filepath.Join(dir, "M2_1um_force.DAT"), "",
		[]float64{1, 2, 3}, []float64{-1, 0.5, 2})

	sec := config.MirrorSection{
		Name:    "m2",
		Kind:    config.KindM2,
		DataDir: dir,
		Files: map[string]string{
			config.RoleFEA:   "M2_GT_FEA.txt",
			config.RoleGrid:  "M2_1um_grid.DAT",
			config.RoleForce: "M2_1um_force.DAT",
			config.RoleLUT:   "",
		},
		SkipRows: 1,
		Radii:    map[string]config.Annulus{"m2": {Inner: 0.9, Outer: 1.71}},
		NumTerms: 22,
		GridN:    16,
		Output: config.OutputPaths{
			Dir:        filepath.Join(dir, "out"),
			ResidueMap: "res_%s.txt",
			Zernike:    "zc_%s.txt",
		},
	}
	return m2Fixture{sec: sec, x: x, y: y}
}

type m1m3Fixture struct {
	sec    config.MirrorSection
	x, y   []float64
	ids    []float64
	ruler  []float64
	forces [][]float64
}

func newM1M3Fixture(t *testing.T) m1m3Fixture {
	t.Helper()
	dir := t.TempDir()
	x3, y3 := annulus(0.55, 2.508, 8, 32)
	x1, y1 := annulus(2.558, 4.18, 6, 40)
	f := m1m3Fixture{ruler: []float64{0, 30, 60, 90}}
	// M1 and M3 samples interleave in the grid file.
	for i := 0; i < len(x1) || i < len(x3); i++ {
		if i < len(x1) {
			f.x, f.y, f.ids = append(f.x, x1[i]), append(f.y, y1[i]), append(f.ids, 1)
		}
		if i < len(x3) {
			f.x, f.y, f.ids = append(f.x, x3[i]), append(f.y, y3[i]), append(f.ids, 3)
		}
	}
	x, y := f.x, f.y

	writeTable(t, filepath.Join(dir, "zenith.txt"), "x y dz", x, y, mapXY(x, y, zenithResponse))
	writeTable(t, filepath.Join(dir, "horizon.txt"), "x y dz", x, y, mapXY(x, y, horizonResponse))
	writeTable(t, filepath.Join(dir, "thermal.txt"), "x y bulk xgrad ygrad zgrad rgrad",
		x, y,
		mapXY(x, y, func(x, y float64) float64 { return 0.001 }),
		mapXY(x, y, func(x, y float64) float64 { return 0.002 * x }),
		mapXY(x, y, func(x, y float64) float64 { return 0.002 * y }),
		mapXY(x, y, axialResponse),
		mapXY(x, y, radialResponse),
	)
	writeTable(t, filepath.Join(dir, "grid.txt"), "", f.ids, x, y)
	writeTable(t, filepath.Join(dir, "force.txt"), "", []float64{10, 20}, []float64{30, 40})

	f.forces = [][]float64{
		{100, 110, 130, 160},
		{-5, -4, -2, 1},
		{0, 0, 0, 0},
	}
	writeTable(t, filepath.Join(dir, "lut.txt"), "",
		[]float64{f.ruler[0], f.forces[0][0], f.forces[1][0], f.forces[2][0]},
		[]float64{f.ruler[1], f.forces[0][1], f.forces[1][1], f.forces[2][1]},
		[]float64{f.ruler[2], f.forces[0][2], f.forces[1][2], f.forces[2][2]},
		[]float64{f.ruler[3], f.forces[0][3], f.forces[1][3], f.forces[2][3]},
	)

	f.sec = config.MirrorSection{
		Name:    "m1m3",
		Kind:    config.KindM1M3,
		DataDir: dir,
		Files: map[string]string{
			config.RoleZenith:  "zenith.txt",
			config.RoleHorizon: "horizon.txt",
			config.RoleThermal: "thermal.txt",
			config.RoleGrid:    "grid.txt",
			config.RoleForce:   "force.txt",
			config.RoleLUT:     "lut.txt",
		},
		SkipRows: 1,
		Radii: map[string]config.Annulus{
			"m1": {Inner: 2.558, Outer: 4.18},
			"m3": {Inner: 0.55, Outer: 2.508},
		},
		NumTerms: 22,
		GridN:    12,
		Output: config.OutputPaths{
			Dir:        filepath.Join(dir, "out"),
			ResidueMap: "res_%s.txt",
			Zernike:    "zc_%s.txt",
		},
	}
	return f
}
