// Package metrics provides lightweight counter, gauge, and histogram
// primitives for the trie storage engine, plus a Registry that creates them
// on demand and a Prometheus bridge for external export.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing count.
type Counter struct {
	name  string
	value atomic.Int64
}

// NewCounter returns a new Counter with the given name.
func NewCounter(name string) *Counter { return &Counter{name: name} }

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Add increments the counter by n. n <= 0 is a no-op, since a counter never
// moves backward.
func (c *Counter) Add(n int64) {
	if n > 0 {
		c.value.Add(n)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Name returns the metric's name.
func (c *Counter) Name() string { return c.name }

// Gauge is a value that moves up and down.
type Gauge struct {
	name  string
	value atomic.Int64
}

// NewGauge returns a new Gauge with the given name.
func NewGauge(name string) *Gauge { return &Gauge{name: name} }

// Set overwrites the gauge's value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Name returns the metric's name.
func (g *Gauge) Name() string { return g.name }

// histStats is the mutable summary a Histogram accumulates under its lock.
type histStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

// Histogram tracks count, sum, min, and max of observed values. It trades
// quantile support for simplicity; a caller needing quantiles should export
// through PrometheusCollector and compute them downstream.
type Histogram struct {
	name string
	mu   sync.Mutex
	s    histStats
}

// NewHistogram returns a new Histogram with the given name.
func NewHistogram(name string) *Histogram {
	return &Histogram{name: name, s: histStats{min: math.MaxFloat64, max: -math.MaxFloat64}}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.count++
	h.s.sum += v
	if v < h.s.min {
		h.s.min = v
	}
	if v > h.s.max {
		h.s.max = v
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s.count
}

// Sum returns the sum of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s.sum
}

// Min returns the smallest observed value, or 0 if there have been none.
func (h *Histogram) Min() float64 { return h.statOrZero(func() float64 { return h.s.min }) }

// Max returns the largest observed value, or 0 if there have been none.
func (h *Histogram) Max() float64 { return h.statOrZero(func() float64 { return h.s.max }) }

// Mean returns the arithmetic mean of all observations, or 0 if there have
// been none.
func (h *Histogram) Mean() float64 {
	return h.statOrZero(func() float64 { return h.s.sum / float64(h.s.count) })
}

func (h *Histogram) statOrZero(read func() float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s.count == 0 {
		return 0
	}
	return read()
}

// Name returns the metric's name.
func (h *Histogram) Name() string { return h.name }

// Timer records the elapsed duration, in milliseconds, into a Histogram
// once Stop is called.
type Timer struct {
	start time.Time
	hist  *Histogram
}

// NewTimer starts a timer that will record into h on Stop. h may be nil, in
// which case Stop still returns the elapsed duration but records nothing.
func NewTimer(h *Histogram) *Timer { return &Timer{start: time.Now(), hist: h} }

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.hist != nil {
		t.hist.Observe(float64(d.Milliseconds()))
	}
	return d
}
