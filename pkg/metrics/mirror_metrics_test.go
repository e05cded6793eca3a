package metrics

import (
	"strings"
	"testing"

	"mirrorsim/pkg/errors"
)

func TestMirrorMetricsDone(t *testing.T) {
	mm := NewMirrorMetrics()
	mm.Done("fit_residual", nil)
	mm.Done("fit_residual", errors.DataShapeError("x", 1, 2))
	mm.Done("run", stdError("plain"))

	if got := mm.Requests.Get(Labels{"op": "fit_residual"}); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
	if got := mm.Errors.Get(Labels{"op": "fit_residual", "code": "DATA_SHAPE"}); got != 1 {
		t.Errorf("expected 1 DATA_SHAPE error, got %d", got)
	}
	if got := mm.Errors.Get(Labels{"op": "run", "code": "UNKNOWN"}); got != 1 {
		t.Errorf("expected 1 UNKNOWN error, got %d", got)
	}
}

type stdError string

func (e stdError) Error() string { return string(e) }

func TestMirrorMetricsRecorders(t *testing.T) {
	mm := NewMirrorMetrics()
	mm.SetResidual("m1m3", "m1", 0.042, 22)
	mm.SetGrid("m1m3", "m1", 204*204, 1000)
	stop := mm.Stage(StageResample)
	stop()

	if got := mm.ResidualRMS.Get(Labels{"mirror": "m1m3", "surface": "m1"}); got != 0.042 {
		t.Errorf("rms = %v", got)
	}
	if got := mm.ZeroFilled.Get(Labels{"mirror": "m1m3", "surface": "m1"}); got != 1000 {
		t.Errorf("zero filled = %v", got)
	}
	if got := mm.StageDuration.Snapshot(Labels{"stage": StageResample}).Count; got != 1 {
		t.Errorf("stage observations = %d", got)
	}

	out := mm.Gather()
	for _, want := range []string{
		`mirrorsim_residual_rms_micrometers{mirror="m1m3",surface="m1"} 0.042`,
		`mirrorsim_grid_nodes{mirror="m1m3",surface="m1"} 41616`,
		`mirrorsim_fit_terms{mirror="m1m3"} 22`,
		`mirrorsim_stage_duration_seconds_count{stage="resample"} 1`,
		"# TYPE mirrorsim_go_goroutines gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("gather output missing %q", want)
		}
	}
	if mm.Registry().Get("mirrorsim_uptime_seconds") == nil {
		t.Error("uptime gauge not registered")
	}
}

func TestMirrorMetricsNil(t *testing.T) {
	var mm *MirrorMetrics
	mm.Stage(StageFit)()
	mm.Done("run", nil)
	mm.SetResidual("m2", "m2", 1, 1)
	mm.SetGrid("m2", "m2", 1, 1)
}
