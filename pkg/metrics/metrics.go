// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package metrics collects counters, gauges and histograms for the
// simulation pipeline and renders them in the Prometheus text exposition
// format. Series within a metric are written in label order so that
// scrapes are stable.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType is the exposition type of a metric.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels are the label pairs of one series.
type Labels map[string]string

// Key returns a canonical identifier for the label set.
func (l Labels) Key() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String renders the set as {k="v",...}, or "" when empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of l with key set to value.
func (l Labels) With(key, value string) Labels {
	out := l.clone()
	out[key] = value
	return out
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string { return labelEscaper.Replace(s) }

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is one named metric family.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

func writeHeader(sb *strings.Builder, m Metric) {
	sb.WriteString("# HELP ")
	sb.WriteString(m.Name())
	sb.WriteByte(' ')
	sb.WriteString(m.Help())
	sb.WriteString("\n# TYPE ")
	sb.WriteString(m.Name())
	sb.WriteByte(' ')
	sb.WriteString(m.Type().String())
	sb.WriteByte('\n')
}

func writeSample(sb *strings.Builder, name string, labels Labels, value string) {
	sb.WriteString(name)
	sb.WriteString(labels.String())
	sb.WriteByte(' ')
	sb.WriteString(value)
	sb.WriteByte('\n')
}

// series is the per-label-set storage shared by all metric kinds.
type series[T any] struct {
	mu     sync.Mutex
	values map[string]*T
	labels map[string]Labels
}

func (s *series[T]) get(labels Labels, init func() *T) *T {
	key := labels.Key()
	if s.values == nil {
		s.values = make(map[string]*T)
		s.labels = make(map[string]Labels)
	}
	v, ok := s.values[key]
	if !ok {
		v = init()
		s.values[key] = v
		s.labels[key] = labels.clone()
	}
	return v
}

func (s *series[T]) lookup(labels Labels) (*T, bool) {
	v, ok := s.values[labels.Key()]
	return v, ok
}

// each visits every series in key order with the lock held.
func (s *series[T]) each(fn func(Labels, *T)) {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(s.labels[k], s.values[k])
	}
}

// Counter is a monotonically increasing count.
type Counter struct {
	name, help string
	s          series[uint64]
}

// NewCounter creates a counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc adds one.
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add adds delta.
func (c *Counter) Add(labels Labels, delta uint64) {
	c.s.mu.Lock()
	*c.s.get(labels, func() *uint64 { return new(uint64) }) += delta
	c.s.mu.Unlock()
}

// Get returns the count for labels.
func (c *Counter) Get(labels Labels) uint64 {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if v, ok := c.s.lookup(labels); ok {
		return *v
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c)
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.each(func(l Labels, v *uint64) {
		writeSample(sb, c.name, l, strconv.FormatUint(*v, 10))
	})
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name, help string
	s          series[float64]
}

// NewGauge creates a gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set replaces the value for labels.
func (g *Gauge) Set(labels Labels, value float64) {
	g.s.mu.Lock()
	*g.s.get(labels, func() *float64 { return new(float64) }) = value
	g.s.mu.Unlock()
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(labels Labels, delta float64) {
	g.s.mu.Lock()
	*g.s.get(labels, func() *float64 { return new(float64) }) += delta
	g.s.mu.Unlock()
}

// Inc adds one.
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec subtracts one.
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the value for labels.
func (g *Gauge) Get(labels Labels) float64 {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if v, ok := g.s.lookup(labels); ok {
		return *v
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g)
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.each(func(l Labels, v *float64) {
		writeSample(sb, g.name, l, formatFloat(*v))
	})
}

// Histogram counts observations into cumulative upper-bound buckets.
type Histogram struct {
	name, help string
	bounds     []float64
	s          series[histogramValue]
}

type histogramValue struct {
	count uint64
	sum   float64
	// buckets[i] counts observations in (bounds[i-1], bounds[i]].
	buckets []uint64
}

// NewHistogram creates a histogram with the given bucket upper bounds.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, bounds: sorted}
}

// DefaultBuckets spans 5 ms to 10 s.
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets returns count bounds starting at start, each factor
// times the previous one.
func ExponentialBuckets(start, factor float64, count int) []float64 {
	b := make([]float64, count)
	for i := range b {
		b[i] = start
		start *= factor
	}
	return b
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records one value.
func (h *Histogram) Observe(labels Labels, value float64) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	hv := h.s.get(labels, func() *histogramValue {
		return &histogramValue{buckets: make([]uint64, len(h.bounds))}
	})
	hv.count++
	hv.sum += value
	if i := sort.SearchFloat64s(h.bounds, value); i < len(h.bounds) {
		hv.buckets[i]++
	}
}

// Timer starts a clock; calling the returned function observes the
// elapsed seconds.
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() { h.Observe(labels, time.Since(start).Seconds()) }
}

// HistogramSnapshot is a copy of one histogram series. Buckets are
// cumulative and keyed by upper bound.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

// Snapshot returns the series for labels.
func (h *Histogram) Snapshot(labels Labels) HistogramSnapshot {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.bounds))}
	hv, ok := h.s.lookup(labels)
	if !ok {
		return snap
	}
	snap.Count, snap.Sum = hv.count, hv.sum
	var cum uint64
	for i, b := range h.bounds {
		cum += hv.buckets[i]
		snap.Buckets[b] = cum
	}
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h)
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	bucket := h.name + "_bucket"
	h.s.each(func(l Labels, hv *histogramValue) {
		var cum uint64
		for i, b := range h.bounds {
			cum += hv.buckets[i]
			writeSample(sb, bucket, l.With("le", formatFloat(b)), strconv.FormatUint(cum, 10))
		}
		writeSample(sb, bucket, l.With("le", "+Inf"), strconv.FormatUint(hv.count, 10))
		writeSample(sb, h.name+"_sum", l, formatFloat(hv.sum))
		writeSample(sb, h.name+"_count", l, strconv.FormatUint(hv.count, 10))
	})
}

// Registry holds metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds m. Names must be unique.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.metrics[m.Name()]; dup {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister is Register that panics on a duplicate name.
func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Get returns the metric called name, or nil.
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every metric.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
