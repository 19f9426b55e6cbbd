// Package metrics provides the in-process metric primitives timecoind's
// subsystems write to, plus a Prometheus bridge (prometheus_exporter.go)
// that republishes Registry contents through
// github.com/prometheus/client_golang on every scrape.
package metrics

import (
	"sync"
	"time"
)

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	mu   sync.Mutex
	n    int64
}

// NewCounter returns a Counter named name.
func NewCounter(name string) *Counter { return &Counter{name: name} }

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

// Add adds n. Counters only move forward; n <= 0 is ignored.
func (c *Counter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
}

// Value returns the running total.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Gauge is an instantaneous value that moves in both directions.
type Gauge struct {
	name string
	mu   sync.Mutex
	v    int64
}

// NewGauge returns a Gauge named name.
func NewGauge(name string) *Gauge { return &Gauge{name: name} }

// Set replaces the gauge value.
func (g *Gauge) Set(v int64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

// Inc adds one.
func (g *Gauge) Inc() { g.add(1) }

// Dec subtracts one.
func (g *Gauge) Dec() { g.add(-1) }

func (g *Gauge) add(d int64) {
	g.mu.Lock()
	g.v += d
	g.mu.Unlock()
}

// Value returns the current value.
func (g *Gauge) Value() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// HistogramSummary is a point-in-time digest of a Histogram.
type HistogramSummary struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

// Histogram tracks the distribution of observed values as a running
// count/sum/min/max digest. Quantiles are deliberately not tracked; the
// Prometheus bridge republishes the digest as a summary with no
// quantiles.
type Histogram struct {
	name string
	mu   sync.Mutex
	s    HistogramSummary
}

// NewHistogram returns a Histogram named name.
func NewHistogram(name string) *Histogram { return &Histogram{name: name} }

// Observe folds v into the digest.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	if h.s.Count == 0 || v < h.s.Min {
		h.s.Min = v
	}
	if h.s.Count == 0 || v > h.s.Max {
		h.s.Max = v
	}
	h.s.Count++
	h.s.Sum += v
	h.mu.Unlock()
}

// Summary returns the current digest. Mean is 0 with no observations.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.s
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
	}
	return s
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 { return h.Summary().Count }

// Sum returns the sum of all observations.
func (h *Histogram) Sum() float64 { return h.Summary().Sum }

// Min returns the smallest observation, or 0 with none.
func (h *Histogram) Min() float64 { return h.Summary().Min }

// Max returns the largest observation, or 0 with none.
func (h *Histogram) Max() float64 { return h.Summary().Max }

// Mean returns the arithmetic mean, or 0 with no observations.
func (h *Histogram) Mean() float64 { return h.Summary().Mean }

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Timer records an operation's elapsed wall time, in milliseconds, into
// a Histogram when stopped.
type Timer struct {
	start time.Time
	hist  *Histogram
}

// NewTimer starts timing. The elapsed time lands in h on Stop.
func NewTimer(h *Histogram) *Timer {
	return &Timer{start: time.Now(), hist: h}
}

// Stop records the elapsed milliseconds into the histogram and returns
// the elapsed duration.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.hist != nil {
		t.hist.Observe(float64(d.Milliseconds()))
	}
	return d
}
