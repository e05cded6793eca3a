package mirror

import (
	"bufio"
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
	"mirrorsim/pkg/metrics"
	"mirrorsim/pkg/zernike"
)

func newTestPipeline(t *testing.T, sec config.MirrorSection) (*Pipeline, *metrics.MirrorMetrics) {
	t.Helper()
	mm := metrics.NewMirrorMetrics()
	p, err := NewPipeline(sec, 2, nil, mm)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, mm
}

func TestParamsFromObservation(t *testing.T) {
	gp := ParamsFromObservation(config.Observation{
		ZenithAngleDeg:      90,
		PreCompElevationDeg: 180,
		TBulk:               1,
		TxGrad:              2,
		TyGrad:              3,
		TzGrad:              4,
		TrGrad:              5,
	})
	want := GeometryParams{
		ZenithRad:      math.Pi / 2,
		PreCompElevRad: math.Pi,
		Thermal:        Thermal{Bulk: 1, X: 2, Y: 3, Z: 4, R: 5},
	}
	if diff := cmp.Diff(want, gp); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
}

func TestComputeNetSurface(t *testing.T) {
	f := newM2Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	gp := GeometryParams{ZenithRad: 0.5, Thermal: Thermal{Z: 0.3, R: 0.1}}

	net, err := p.ComputeNetSurface(context.Background(), gp)
	if err != nil {
		t.Fatal(err)
	}
	pt, _ := p.Corrector.PrintThrough(gp.ZenithRad, gp.PreCompElevRad)
	th, _ := p.Corrector.ThermalCorrection(gp.Thermal)
	for i := range net.Z {
		if want := pt.Z[i] + th.Z[i]; net.Z[i] != want {
			t.Fatalf("sample %d: got %v, want %v", i, net.Z[i], want)
		}
	}
	if got := mm.Requests.Get(metrics.Labels{"op": OpNetSurface}); got != 1 {
		t.Errorf("requests = %d", got)
	}
}

// zernikeField returns a native-frame M2 field whose optics-frame values
// are Zernike term j on the unit-normalized aperture.
func zernikeField(t *testing.T, p *Pipeline, x, y []float64, j int) SurfaceField {
	t.Helper()
	frame := p.Corrector.Frame()
	outer := p.Corrector.Geometry().Outer
	ox, oy, _, err := frame.Forward(x, y, make([]float64, len(x)))
	if err != nil {
		t.Fatal(err)
	}
	oz := make([]float64, len(x))
	for i := range oz {
		oz[i] = zernike.Term(j, ox[i]/outer, oy[i]/outer)
	}
	nx, ny, nz, err := frame.Inverse(ox, oy, oz)
	if err != nil {
		t.Fatal(err)
	}
	return SurfaceField{X: nx, Y: ny, Z: nz, PosUnit: Meter, ValueUnit: Micrometer}
}

func TestFitResidualRecoversTerm(t *testing.T) {
	f := newM2Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	for _, j := range []int{1, 4, 5, 11} {
		res, err := p.FitResidual(context.Background(), zernikeField(t, p, f.x, f.y, j), 22)
		if err != nil {
			t.Fatalf("j=%d: %v", j, err)
		}
		if len(res) != 1 || res[0].Surface != "m2" {
			t.Fatalf("j=%d: unexpected residuals %+v", j, res)
		}
		r := res[0]
		if len(r.Coefficients) != 22 {
			t.Fatalf("j=%d: %d coefficients", j, len(r.Coefficients))
		}
		for k, c := range r.Coefficients {
			want := 0.0
			if k == j-1 {
				want = 1
			}
			if math.Abs(c-want) > 1e-9 {
				t.Errorf("j=%d: coefficient %d = %v, want %v", j, k+1, c, want)
			}
		}
		if r.RMS > 1e-9 {
			t.Errorf("j=%d: residual rms %v", j, r.RMS)
		}
		// Residual positions are in the optics frame.
		if r.Field.X[0] != -f.x[0] || r.Field.Y[0] != f.y[0] {
			t.Errorf("j=%d: residual not in optics frame", j)
		}
	}
	if got := mm.FitTerms.Get(metrics.Labels{"mirror": "m2"}); got != 22 {
		t.Errorf("fit terms gauge = %v", got)
	}
}

func TestFitResidualBadTerms(t *testing.T) {
	f := newM2Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	field := zernikeField(t, p, f.x, f.y, 4)
	for _, n := range []int{0, -1, zernike.MaxTerms + 1} {
		if _, err := p.FitResidual(context.Background(), field, n); !errors.IsConfiguration(err) {
			t.Errorf("numTerms=%d: expected CONFIGURATION, got %v", n, err)
		}
	}
	if got := mm.Errors.Get(metrics.Labels{"op": OpFitResidual, "code": string(errors.ErrConfiguration)}); got != 3 {
		t.Errorf("configuration errors = %d", got)
	}
}

func TestFitResidualM1M3(t *testing.T) {
	f := newM1M3Fixture(t)
	p, _ := newTestPipeline(t, f.sec)
	net, err := p.ComputeNetSurface(context.Background(), GeometryParams{ZenithRad: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.FitResidual(context.Background(), net, 22)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Surface != "m1" || res[1].Surface != "m3" {
		t.Fatalf("unexpected residuals %+v", res)
	}
	for _, r := range res {
		// The synthetic responses are low-order polynomials, so the fit
		// absorbs nearly all of them.
		if r.RMS > 1e-6 {
			t.Errorf("%s: residual rms %v", r.Surface, r.RMS)
		}
	}
}

func TestExportGridMapParaboloid(t *testing.T) {
	const a, b, c = 0.8, 0.3, -0.5 // um per m^2
	var x, y, z []float64
	for gx := -1.0; gx <= 1.0+1e-9; gx += 0.08 {
		for gy := -1.0; gy <= 1.0+1e-9; gy += 0.08 {
			if math.Hypot(gx, gy) > 1 {
				continue
			}
			x = append(x, gx)
			y = append(y, gy)
			z = append(z, a*gx*gx+b*gx*gy+c*gy*gy)
		}
	}
	r := Residual{
		Surface:  "test",
		Geometry: Geometry{Inner: 0, Outer: 1},
		Field:    SurfaceField{X: x, Y: y, Z: z, PosUnit: Meter, ValueUnit: Micrometer},
	}

	f := newM2Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	m, err := p.ExportGridMap(context.Background(), r, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumX != 20 || m.NumY != 20 {
		t.Fatalf("grid %dx%d", m.NumX, m.NumY)
	}

	// In mm: z = 1e-9 (a X^2 + b X Y + c Y^2).
	const s = 1e-9
	maxGrad := s * 2 * 1000 * (math.Abs(a) + math.Abs(b) + math.Abs(c))
	checked := 0
	for jj := 0; jj < m.NumX; jj++ {
		for ii := 0; ii < m.NumY; ii++ {
			X, Y := m.Position(jj, ii)
			if math.Hypot(X, Y) > 700 {
				continue
			}
			checked++
			n := m.At(jj, ii)
			wantZ := s * (a*X*X + b*X*Y + c*Y*Y)
			if math.Abs(n.Value-wantZ) > 1e-3*s*1e6 {
				t.Errorf("node (%d,%d) value %v, want %v", jj, ii, n.Value, wantZ)
			}
			if want := s * (2*a*X + b*Y); math.Abs(n.DX-want) > 1e-2*maxGrad {
				t.Errorf("node (%d,%d) dx %v, want %v", jj, ii, n.DX, want)
			}
			if want := s * (b*X + 2*c*Y); math.Abs(n.DY-want) > 1e-2*maxGrad {
				t.Errorf("node (%d,%d) dy %v, want %v", jj, ii, n.DY, want)
			}
			if math.Abs(n.DXDY-s*b) > 0.25*s*b {
				t.Errorf("node (%d,%d) dxdy %v, want %v", jj, ii, n.DXDY, s*b)
			}
		}
	}
	if checked == 0 {
		t.Fatal("no interior nodes checked")
	}
	if got := mm.GridNodes.Get(metrics.Labels{"mirror": "m2", "surface": "test"}); got != 400 {
		t.Errorf("grid nodes gauge = %v", got)
	}
	if m.ZeroFilled == 0 {
		t.Error("corner nodes should be zero-filled")
	}
}

func TestExportGridMapBadSize(t *testing.T) {
	f := newM2Fixture(t)
	p, _ := newTestPipeline(t, f.sec)
	r := Residual{Surface: "m2", Geometry: Geometry{Inner: 0.9, Outer: 1.71}}
	if _, err := p.ExportGridMap(context.Background(), r, 1, 16); !errors.IsConfiguration(err) {
		t.Errorf("expected CONFIGURATION, got %v", err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}

func TestRunM2(t *testing.T) {
	f := newM2Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	req := RequestFromConfig(f.sec, config.Observation{ZenithAngleDeg: 30, TzGrad: 0.2})

	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mirror != "m2" || len(res.Surfaces) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	sr := res.Surfaces[0]
	if want := filepath.Join(f.sec.Output.Dir, "res_m2.txt"); sr.ResidueMap != want {
		t.Errorf("residue map %q, want %q", sr.ResidueMap, want)
	}
	if sr.Plot != "" {
		t.Errorf("plot written without plot_file: %q", sr.Plot)
	}

	m, err := gridmap.ReadFile(sr.ResidueMap)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumX != f.sec.GridN+gridmap.Padding || m.NumY != f.sec.GridN+gridmap.Padding {
		t.Errorf("residue map %dx%d", m.NumX, m.NumY)
	}
	if sr.NumX != m.NumX || len(m.Nodes) != m.NumX*m.NumY {
		t.Errorf("result reports %d, file has %d nodes", sr.NumX, len(m.Nodes))
	}
	if n := countLines(t, sr.ZernikeFile); n != 22 {
		t.Errorf("zernike file has %d lines, want 22", n)
	}

	if got := mm.Requests.Get(metrics.Labels{"op": OpRun}); got != 1 {
		t.Errorf("run requests = %d", got)
	}
	if got := mm.StageDuration.Snapshot(metrics.Labels{"stage": metrics.StageExport}).Count; got != 1 {
		t.Errorf("export stage observations = %d", got)
	}
}

func TestRunM1M3WithPlot(t *testing.T) {
	f := newM1M3Fixture(t)
	f.sec.Output.Plot = "plot_%s.png"
	p, _ := newTestPipeline(t, f.sec)

	res, err := p.Run(context.Background(), RequestFromConfig(f.sec, config.Observation{ZenithAngleDeg: 45, TBulk: 1}))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, sr := range res.Surfaces {
		names = append(names, sr.Surface)
		for _, path := range []string{sr.ResidueMap, sr.ZernikeFile, sr.Plot} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("%s: %v", sr.Surface, err)
			}
		}
	}
	if diff := cmp.Diff([]string{"m1", "m3"}, names); diff != "" {
		t.Errorf("surfaces (-want +got):\n%s", diff)
	}
}

func TestRunChecksParametersFirst(t *testing.T) {
	f := newM2Fixture(t)
	if err := os.Remove(filepath.Join(f.sec.DataDir, "M2_GT_FEA.txt")); err != nil {
		t.Fatal(err)
	}
	p, _ := newTestPipeline(t, f.sec)

	req := RequestFromConfig(f.sec, config.Observation{})
	req.NumTerms = zernike.MaxTerms + 1
	if _, err := p.Run(context.Background(), req); !errors.IsConfiguration(err) {
		t.Errorf("bad terms: expected CONFIGURATION, got %v", err)
	}

	req = RequestFromConfig(f.sec, config.Observation{})
	req.GridN = 1
	if _, err := p.Run(context.Background(), req); !errors.IsConfiguration(err) {
		t.Errorf("bad grid: expected CONFIGURATION, got %v", err)
	}

	req = RequestFromConfig(f.sec, config.Observation{})
	if _, err := p.Run(context.Background(), req); !errors.IsIO(err) {
		t.Errorf("missing table: expected IO, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newM2Fixture(t)
	p, _ := newTestPipeline(t, f.sec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, RequestFromConfig(f.sec, config.Observation{}))
	if !errors.Is(err, errors.ErrRuntime) {
		t.Errorf("expected RUNTIME, got %v", err)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
	if _, err := os.Stat(f.sec.Output.Dir); !os.IsNotExist(err) {
		t.Error("cancelled run created the output directory")
	}
}

func TestLUTForcesThroughPipeline(t *testing.T) {
	f := newM1M3Fixture(t)
	p, mm := newTestPipeline(t, f.sec)
	got, err := p.LUTForces(60)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{130, -2, 0}, got); diff != "" {
		t.Errorf("forces (-want +got):\n%s", diff)
	}
	if got := mm.Requests.Get(metrics.Labels{"op": OpLUTForces}); got != 1 {
		t.Errorf("lut requests = %d", got)
	}
}
