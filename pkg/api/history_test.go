package api

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/mirror"
)

func newTestHistory(capacity int) *RunHistory {
	h := NewRunHistory(capacity)
	clock := time.Unix(1000, 0)
	h.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return h
}

func jobIDs(jobs []RunJob) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.JobID
	}
	return ids
}

func TestRunHistoryLifecycle(t *testing.T) {
	h := newTestHistory(0)
	id := h.Start("m2", map[string]any{"zenith_angle": 30})

	job, err := h.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != JobInProgress || job.EndTime != nil {
		t.Errorf("new job %+v", job)
	}

	res := &mirror.Result{Mirror: "m2", Surfaces: []mirror.SurfaceResult{{Surface: "m2"}}}
	h.Finish(id, res, nil)
	job, _ = h.Get(id)
	if job.Status != JobCompleted || job.Duration != 1 || job.Result != res {
		t.Errorf("finished job %+v", job)
	}

	failed := h.Start("m1m3", nil)
	h.Finish(failed, nil, errors.DataShapeError("rows", 1, 2))
	job, _ = h.Get(failed)
	if job.Status != JobError || job.ErrorCode != "DATA_SHAPE" {
		t.Errorf("failed job %+v", job)
	}

	want := JobTotals{TotalJobs: 2, FailedJobs: 1, TotalTime: 2, LongestJob: 1, SurfacesRun: 1}
	if diff := cmp.Diff(want, h.Totals()); diff != "" {
		t.Errorf("totals (-want +got):\n%s", diff)
	}

	if err := h.Delete(id); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(id); err == nil {
		t.Error("deleted job still present")
	}
	if err := h.Delete(id); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestRunHistoryList(t *testing.T) {
	h := newTestHistory(0)
	var ids []string
	for i := 0; i < 4; i++ {
		id := h.Start("m2", nil)
		h.Finish(id, nil, nil)
		ids = append(ids, id)
	}

	tests := []struct {
		name         string
		limit, start int
		order        string
		want         []string
	}{
		{"newest first", 0, 0, "desc", []string{ids[3], ids[2], ids[1], ids[0]}},
		{"oldest first", 0, 0, "asc", ids},
		{"limit", 2, 0, "", []string{ids[3], ids[2]}},
		{"start", 2, 3, "", []string{ids[0]}},
		{"past end", 0, 4, "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, count := h.List(tt.limit, tt.start, tt.order)
			if count != 4 {
				t.Errorf("count = %d", count)
			}
			if diff := cmp.Diff(tt.want, jobIDs(jobs)); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunHistoryCapacity(t *testing.T) {
	h := newTestHistory(2)
	running := h.Start("m2", nil)
	a := h.Start("m2", nil)
	h.Finish(a, nil, nil)
	b := h.Start("m2", nil)
	h.Finish(b, nil, nil)

	// The in-progress job survives; the oldest finished one is dropped.
	jobs, count := h.List(0, 0, "desc")
	if count != 2 {
		t.Fatalf("count = %d", count)
	}
	if diff := cmp.Diff([]string{b, running}, jobIDs(jobs)); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
}
