package resplot

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/gridmap"
)

func testData(t *testing.T) (*gridmap.Map, Samples) {
	t.Helper()
	f := gridmap.SurfaceFunc(func(x, y float64) float64 { return 1e-6 * x * y })
	m, err := gridmap.Resample(context.Background(), f, gridmap.Radii{Inner: 100, Outer: 500}, 8, 8, gridmap.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var s Samples
	for i := 0; i < 60; i++ {
		th := float64(i) * 0.3
		r := 150 + 5*float64(i)
		x, y := r*math.Cos(th), r*math.Sin(th)
		s.X = append(s.X, x)
		s.Y = append(s.Y, y)
		s.Z = append(s.Z, f(x, y))
	}
	return m, s
}

func TestPanels(t *testing.T) {
	m, s := testData(t)
	plots, err := Panels(m, s, 500)
	if err != nil {
		t.Fatalf("Panels failed: %v", err)
	}
	if len(plots) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(plots))
	}
	if !strings.HasPrefix(plots[0].Title.Text, "grid input") {
		t.Errorf("unexpected title %q", plots[0].Title.Text)
	}
	if plots[1].X.Max != 500 || plots[1].Y.Min != -500 {
		t.Errorf("axes not fixed to aperture: %v %v", plots[1].X.Max, plots[1].Y.Min)
	}
}

func TestRenderPNG(t *testing.T) {
	m, s := testData(t)
	path := filepath.Join(t.TempDir(), "res_m2.png")
	if err := Render(path, m, s, 500); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestRenderSVGWithoutGrid(t *testing.T) {
	_, s := testData(t)
	path := filepath.Join(t.TempDir(), "res.svg")
	if err := Render(path, nil, s, 500); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !bytes.Contains(data, []byte("<svg")) {
		t.Error("output is not an SVG")
	}
}

func TestRenderErrors(t *testing.T) {
	_, s := testData(t)
	dir := t.TempDir()
	if err := Render(filepath.Join(dir, "noext"), nil, s, 500); !errors.IsConfiguration(err) {
		t.Errorf("expected CONFIGURATION for missing extension, got %v", err)
	}
	if err := Render(filepath.Join(dir, "x.bmp9"), nil, s, 500); !errors.IsConfiguration(err) {
		t.Errorf("expected CONFIGURATION for unknown format, got %v", err)
	}
	s.Z = s.Z[:1]
	if err := Render(filepath.Join(dir, "x.png"), nil, s, 500); !errors.IsDataShape(err) {
		t.Errorf("expected DATA_SHAPE, got %v", err)
	}
}

func TestRenderFile(t *testing.T) {
	m, s := testData(t)
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "res_m2.txt")
	if err := gridmap.WriteFile(mapPath, m); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "res_m2.png")
	if err := RenderFile(path, mapPath, s, 500); err != nil {
		t.Fatalf("RenderFile failed: %v", err)
	}
	if data, _ := os.ReadFile(path); !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}

	if err := RenderFile(path, filepath.Join(dir, "missing.txt"), s, 500); !errors.IsIO(err) {
		t.Errorf("expected IO for missing map, got %v", err)
	}
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("3037000500 3037000500 1 1\n0 0 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RenderFile(filepath.Join(dir, "bad.png"), bad, s, 500); !errors.IsDataShape(err) {
		t.Errorf("expected DATA_SHAPE for bad header, got %v", err)
	}
}
