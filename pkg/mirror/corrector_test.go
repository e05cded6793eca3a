package mirror

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/errors"
)

func mustCorrector(t *testing.T, sec config.MirrorSection) SurfaceCorrector {
	t.Helper()
	c, err := NewCorrector(sec, nil)
	if err != nil {
		t.Fatalf("NewCorrector(%s) failed: %v", sec.Name, err)
	}
	return c
}

func TestNewCorrectorErrors(t *testing.T) {
	f := newM2Fixture(t)

	unknown := f.sec
	unknown.Kind = "m4"
	if _, err := NewCorrector(unknown, nil); !errors.IsConfiguration(err) {
		t.Errorf("unknown kind: expected CONFIGURATION, got %v", err)
	}

	noRadii := f.sec
	noRadii.Radii = nil
	if _, err := NewCorrector(noRadii, nil); !errors.IsConfiguration(err) {
		t.Errorf("missing radii: expected CONFIGURATION, got %v", err)
	}

	inverted := f.sec
	inverted.Radii = map[string]config.Annulus{"m2": {Inner: 2, Outer: 1}}
	if _, err := NewCorrector(inverted, nil); !errors.IsConfiguration(err) {
		t.Errorf("inverted radii: expected CONFIGURATION, got %v", err)
	}
}

func TestPrintThroughAtReferencePose(t *testing.T) {
	m2 := newM2Fixture(t)
	m1m3 := newM1M3Fixture(t)
	for _, sec := range []config.MirrorSection{m2.sec, m1m3.sec} {
		t.Run(sec.Name, func(t *testing.T) {
			c := mustCorrector(t, sec)
			for _, angle := range []float64{0, 0.3, math.Pi / 4, 1.2} {
				f, err := c.PrintThrough(angle, angle)
				if err != nil {
					t.Fatal(err)
				}
				for i, v := range f.Z {
					if v != 0 {
						t.Fatalf("angle %v sample %d: got %v, want 0", angle, i, v)
					}
				}
			}
		})
	}
}

func TestPrintThroughFormula(t *testing.T) {
	f := newM2Fixture(t)
	c := mustCorrector(t, f.sec)
	theta, theta0 := math.Pi/3, 0.1
	got, err := c.PrintThrough(theta, theta0)
	if err != nil {
		t.Fatal(err)
	}
	if got.PosUnit != Meter || got.ValueUnit != Micrometer {
		t.Errorf("units %s/%s", got.PosUnit, got.ValueUnit)
	}
	if diff := cmp.Diff(f.x, got.X); diff != "" {
		t.Errorf("positions differ from grid (-want +got):\n%s", diff)
	}
	for i := range f.x {
		z, h := zenithResponse(f.x[i], f.y[i]), horizonResponse(f.x[i], f.y[i])
		want := (z*math.Cos(theta) + h*math.Sin(theta)) - (z*math.Cos(theta0) + h*math.Sin(theta0))
		if math.Abs(got.Z[i]-want) > 1e-14 {
			t.Fatalf("sample %d: got %v, want %v", i, got.Z[i], want)
		}
	}
}

func TestThermalZeroGradients(t *testing.T) {
	m2 := newM2Fixture(t)
	m1m3 := newM1M3Fixture(t)
	for _, sec := range []config.MirrorSection{m2.sec, m1m3.sec} {
		t.Run(sec.Name, func(t *testing.T) {
			f, err := mustCorrector(t, sec).ThermalCorrection(Thermal{})
			if err != nil {
				t.Fatal(err)
			}
			if f.Len() == 0 {
				t.Fatal("empty field")
			}
			for i, v := range f.Z {
				if v != 0 {
					t.Fatalf("sample %d: got %v, want 0", i, v)
				}
			}
		})
	}
}

func TestThermalSuperposition(t *testing.T) {
	m2 := newM2Fixture(t)
	th := Thermal{Bulk: 5, X: 3, Y: 2, Z: 0.4, R: -0.7}
	got, err := mustCorrector(t, m2.sec).ThermalCorrection(th)
	if err != nil {
		t.Fatal(err)
	}
	for i := range m2.x {
		x, y := m2.x[i], m2.y[i]
		// M2 models only the axial and radial gradients.
		want := th.Z*axialResponse(x, y) + th.R*radialResponse(x, y)
		if math.Abs(got.Z[i]-want) > 1e-15 {
			t.Fatalf("m2 sample %d: got %v, want %v", i, got.Z[i], want)
		}
	}

	m1m3 := newM1M3Fixture(t)
	got, err = mustCorrector(t, m1m3.sec).ThermalCorrection(th)
	if err != nil {
		t.Fatal(err)
	}
	for i := range m1m3.x {
		x, y := m1m3.x[i], m1m3.y[i]
		want := th.Bulk*0.001 + th.X*0.002*x + th.Y*0.002*y +
			th.Z*axialResponse(x, y) + th.R*radialResponse(x, y)
		if math.Abs(got.Z[i]-want) > 1e-14 {
			t.Fatalf("m1m3 sample %d: got %v, want %v", i, got.Z[i], want)
		}
	}
}

func TestTableShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, dir string)
	}{
		{"fea rows", func(t *testing.T, dir string) {
			writeTable(t, filepath.Join(dir, "M2_GT_FEA.txt"), "header",
				[]float64{1, 2}, []float64{1, 2}, []float64{1, 2},
				[]float64{1, 2}, []float64{1, 2}, []float64{1, 2})
		}},
		{"fea columns", func(t *testing.T, dir string) {
			x, y := annulus(0.9, 1.71, 8, 32)
			writeTable(t, filepath.Join(dir, "M2_GT_FEA.txt"), "header", x, y, x, y)
		}},
		{"grid columns", func(t *testing.T, dir string) {
			x, _ := annulus(0.9, 1.71, 8, 32)
			writeTable(t, filepath.Join(dir, "M2_1um_grid.DAT"), "", x)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newM2Fixture(t)
			tt.write(t, f.sec.DataDir)
			c := mustCorrector(t, f.sec)
			if _, err := c.PrintThrough(0.5, 0); !errors.IsDataShape(err) {
				t.Errorf("PrintThrough: expected DATA_SHAPE, got %v", err)
			}
			if _, err := c.ThermalCorrection(Thermal{Z: 1}); !errors.IsDataShape(err) {
				t.Errorf("ThermalCorrection: expected DATA_SHAPE, got %v", err)
			}
		})
	}
}

func TestM1M3ThermalRowMismatch(t *testing.T) {
	f := newM1M3Fixture(t)
	writeTable(t, filepath.Join(f.sec.DataDir, "thermal.txt"), "header",
		[]float64{0}, []float64{0}, []float64{0}, []float64{0}, []float64{0}, []float64{0}, []float64{0})
	_, err := mustCorrector(t, f.sec).ThermalCorrection(Thermal{})
	if !errors.IsDataShape(err) {
		t.Fatalf("expected DATA_SHAPE, got %v", err)
	}
	var me *errors.MirrorError
	if !asMirrorError(err, &me) || filepath.Base(me.Path) != "thermal.txt" {
		t.Errorf("error should name the thermal table, got %v", err)
	}
}

func asMirrorError(err error, target **errors.MirrorError) bool {
	me, ok := err.(*errors.MirrorError)
	if ok {
		*target = me
	}
	return ok
}

func TestMissingTable(t *testing.T) {
	f := newM2Fixture(t)
	if err := os.Remove(filepath.Join(f.sec.DataDir, "M2_GT_FEA.txt")); err != nil {
		t.Fatal(err)
	}
	_, err := mustCorrector(t, f.sec).PrintThrough(0.2, 0)
	if !errors.IsIO(err) {
		t.Fatalf("expected IO, got %v", err)
	}
}

func TestActuatorForces(t *testing.T) {
	f := newM2Fixture(t)
	forces, err := mustCorrector(t, f.sec).ActuatorForces()
	if err != nil {
		t.Fatal(err)
	}
	if forces.Rows() != 3 || forces.Cols() != 2 {
		t.Fatalf("expected 3x2 forces, got %dx%d", forces.Rows(), forces.Cols())
	}
	if diff := cmp.Diff([]float64{-1, 0.5, 2}, forces.Col(1)); diff != "" {
		t.Errorf("forces column (-want +got):\n%s", diff)
	}
}

func TestLUTForces(t *testing.T) {
	f := newM1M3Fixture(t)
	c := mustCorrector(t, f.sec)

	col := func(k int) []float64 {
		out := make([]float64, len(f.forces))
		for i := range f.forces {
			out[i] = f.forces[i][k]
		}
		return out
	}
	tests := []struct {
		deg  float64
		want []float64
	}{
		{30, col(1)},
		{-10, col(0)},
		{0, col(0)},
		{90, col(3)},
		{120, col(3)},
		{45, []float64{120, -3, 0}},
	}
	for _, tt := range tests {
		got, err := c.LUTForces(tt.deg)
		if err != nil {
			t.Fatalf("LUTForces(%v): %v", tt.deg, err)
		}
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("LUTForces(%v) (-want +got):\n%s", tt.deg, diff)
		}
	}

	if _, err := c.LUTForces(math.NaN()); !errors.IsConfiguration(err) {
		t.Errorf("NaN zenith: expected CONFIGURATION, got %v", err)
	}

	m2 := newM2Fixture(t)
	if _, err := mustCorrector(t, m2.sec).LUTForces(10); !errors.IsConfiguration(err) {
		t.Errorf("m2 without lut_file: expected CONFIGURATION, got %v", err)
	}
}

func TestLUTMalformedRuler(t *testing.T) {
	f := newM1M3Fixture(t)
	writeTable(t, filepath.Join(f.sec.DataDir, "lut.txt"), "",
		[]float64{0, 1}, []float64{30, 2}, []float64{20, 3})
	if _, err := mustCorrector(t, f.sec).LUTForces(10); !errors.IsMalformedTable(err) {
		t.Errorf("expected MALFORMED_TABLE, got %v", err)
	}
}

func TestM1M3Surfaces(t *testing.T) {
	f := newM1M3Fixture(t)
	c := mustCorrector(t, f.sec)
	net, err := c.PrintThrough(0.4, 0)
	if err != nil {
		t.Fatal(err)
	}
	subs, err := c.Surfaces(net)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Name != "m1" || subs[1].Name != "m3" {
		t.Fatalf("unexpected sub-surfaces %+v", subs)
	}
	if subs[0].Field.Len() != 6*40 || subs[1].Field.Len() != 8*32 {
		t.Errorf("split sizes %d/%d", subs[0].Field.Len(), subs[1].Field.Len())
	}
	if subs[0].Geometry != (Geometry{Inner: 2.558, Outer: 4.18}) {
		t.Errorf("m1 geometry %+v", subs[0].Geometry)
	}
	for _, s := range subs {
		for i := range s.Field.X {
			r := math.Hypot(s.Field.X[i], s.Field.Y[i])
			if r < s.Geometry.Inner-1e-12 || r > s.Geometry.Outer+1e-12 {
				t.Fatalf("%s sample %d at r=%v outside its annulus", s.Name, i, r)
			}
		}
	}
	if g := c.Geometry(); g.Inner != 0.55 || g.Outer != 4.18 {
		t.Errorf("overall geometry %+v", g)
	}

	short := net
	short.X, short.Y, short.Z = net.X[:10], net.Y[:10], net.Z[:10]
	if _, err := c.Surfaces(short); !errors.IsDataShape(err) {
		t.Errorf("short field: expected DATA_SHAPE, got %v", err)
	}
}

func TestM1M3UnknownSurfaceID(t *testing.T) {
	f := newM1M3Fixture(t)
	ids := append([]float64(nil), f.ids...)
	ids[5] = 2
	writeTable(t, filepath.Join(f.sec.DataDir, "grid.txt"), "", ids, f.x, f.y)
	c := mustCorrector(t, f.sec)
	net, err := c.PrintThrough(0.4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Surfaces(net); !errors.IsDataShape(err) {
		t.Errorf("expected DATA_SHAPE, got %v", err)
	}
}
