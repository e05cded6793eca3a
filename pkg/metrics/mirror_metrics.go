// Metric set for the mirror pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"

	"mirrorsim/pkg/errors"
)

// Pipeline stage names used as the "stage" label.
const (
	StageNetSurface  = "net_surface"
	StageFit         = "fit_residual"
	StageInterpolant = "interpolant"
	StageResample    = "resample"
	StageExport      = "export"
)

// MirrorMetrics is the set of metrics exported by the simulator.
type MirrorMetrics struct {
	registry  *Registry
	startTime time.Time

	Requests      *Counter   // op
	Errors        *Counter   // op, code
	StageDuration *Histogram // stage
	ResidualRMS   *Gauge     // mirror, surface (micrometers)
	GridNodes     *Gauge     // mirror, surface
	ZeroFilled    *Gauge     // mirror, surface
	FitTerms      *Gauge     // mirror

	Uptime       *Gauge
	GoGoroutines *Gauge
	GoMemoryHeap *Gauge
	GoGCCycles   *Gauge
}

// NewMirrorMetrics creates the metrics on a private registry.
func NewMirrorMetrics() *MirrorMetrics {
	mm := &MirrorMetrics{
		registry:  NewRegistry(),
		startTime: time.Now(),

		Requests: NewCounter("mirrorsim_requests_total",
			"Simulation operations started, by operation"),
		Errors: NewCounter("mirrorsim_errors_total",
			"Failed operations, by operation and error code"),
		StageDuration: NewHistogram("mirrorsim_stage_duration_seconds",
			"Time spent in each pipeline stage",
			ExponentialBuckets(0.001, 4, 9)),
		ResidualRMS: NewGauge("mirrorsim_residual_rms_micrometers",
			"RMS of the last fitted residual"),
		GridNodes: NewGauge("mirrorsim_grid_nodes",
			"Nodes in the last exported residue map"),
		ZeroFilled: NewGauge("mirrorsim_grid_zero_filled_nodes",
			"Nodes outside the aperture in the last exported residue map"),
		FitTerms: NewGauge("mirrorsim_fit_terms",
			"Zernike terms removed by the last fit"),

		Uptime:       NewGauge("mirrorsim_uptime_seconds", "Seconds since start"),
		GoGoroutines: NewGauge("mirrorsim_go_goroutines", "Number of goroutines"),
		GoMemoryHeap: NewGauge("mirrorsim_go_memory_heap_bytes", "Heap bytes allocated"),
		GoGCCycles:   NewGauge("mirrorsim_go_gc_cycles", "Completed GC cycles"),
	}
	mm.registry.MustRegister(
		mm.Requests, mm.Errors, mm.StageDuration,
		mm.ResidualRMS, mm.GridNodes, mm.ZeroFilled, mm.FitTerms,
		mm.Uptime, mm.GoGoroutines, mm.GoMemoryHeap, mm.GoGCCycles,
	)
	return mm
}

// updateRuntime refreshes the process gauges.
func (mm *MirrorMetrics) updateRuntime() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	mm.Uptime.Set(nil, time.Since(mm.startTime).Seconds())
	mm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	mm.GoMemoryHeap.Set(nil, float64(m.HeapAlloc))
	mm.GoGCCycles.Set(nil, float64(m.NumGC))
}

// Stage starts timing a pipeline stage. Call the result when it ends.
// A nil receiver returns a no-op.
func (mm *MirrorMetrics) Stage(stage string) func() {
	if mm == nil {
		return func() {}
	}
	return mm.StageDuration.Timer(Labels{"stage": stage})
}

// Done counts op and, when err is non-nil, its error code.
func (mm *MirrorMetrics) Done(op string, err error) {
	if mm == nil {
		return
	}
	mm.Requests.Inc(Labels{"op": op})
	if err != nil {
		code := errors.CodeOf(err)
		if code == "" {
			code = "UNKNOWN"
		}
		mm.Errors.Inc(Labels{"op": op, "code": string(code)})
	}
}

// SetResidual records the RMS of a fitted surface.
func (mm *MirrorMetrics) SetResidual(mirror, surface string, rmsMicrons float64, terms int) {
	if mm == nil {
		return
	}
	mm.ResidualRMS.Set(Labels{"mirror": mirror, "surface": surface}, rmsMicrons)
	mm.FitTerms.Set(Labels{"mirror": mirror}, float64(terms))
}

// SetGrid records the size of an exported residue map.
func (mm *MirrorMetrics) SetGrid(mirror, surface string, nodes, zeroFilled int) {
	if mm == nil {
		return
	}
	l := Labels{"mirror": mirror, "surface": surface}
	mm.GridNodes.Set(l, float64(nodes))
	mm.ZeroFilled.Set(l, float64(zeroFilled))
}

// Gather renders all metrics in Prometheus text format.
func (mm *MirrorMetrics) Gather() string {
	mm.updateRuntime()
	return mm.registry.Gather()
}

// Registry returns the underlying registry.
func (mm *MirrorMetrics) Registry() *Registry {
	return mm.registry
}
