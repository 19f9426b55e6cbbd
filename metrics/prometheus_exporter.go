package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter republishes a Registry's counters, gauges, and
// histograms through github.com/prometheus/client_golang, plus any
// registered CustomCollector producers. It exists because the rest of
// this package is a deliberately tiny, dependency-free metrics core
// (Registry/Counter/Gauge/Histogram); PrometheusExporter is the one place
// that bridges it to the real Prometheus client for scraping.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "timecoind" produces "timecoind_chain_height").
	Namespace string
	// EnableRuntime controls whether the standard Go runtime collector
	// (goroutines, memory, GC) is registered alongside Registry metrics.
	EnableRuntime bool
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace:     "timecoind",
		EnableRuntime: true,
		Path:          "/metrics",
	}
}

// CustomCollector is an interface for registering arbitrary metric
// producers that are sampled during each scrape.
type CustomCollector interface {
	// Collect returns a set of metric data points, each with optional
	// labels.
	Collect() []MetricLine
}

// MetricLine represents a single metric data point with optional labels.
type MetricLine struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// PrometheusExporter formats and serves metrics over HTTP using the
// client_golang registry and exposition encoder.
type PrometheusExporter struct {
	config       PrometheusConfig
	registry     *Registry
	promReg      *prometheus.Registry
	collectorsMu sync.RWMutex
	collectors   map[string]CustomCollector
}

// NewPrometheusExporter creates a new exporter that reads from the given
// Registry and serves the result through a fresh prometheus.Registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}

	promReg := prometheus.NewRegistry()
	pe := &PrometheusExporter{
		config:     config,
		registry:   registry,
		promReg:    promReg,
		collectors: make(map[string]CustomCollector),
	}

	promReg.MustRegister(&registrySnapshotCollector{
		namespace: config.Namespace,
		registry:  registry,
		exporter:  pe,
	})

	if config.EnableRuntime {
		promReg.MustRegister(collectors.NewGoCollector())
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return pe
}

// RegisterCollector adds a named custom collector. If a collector with
// the same name exists, it is replaced.
func (pe *PrometheusExporter) RegisterCollector(name string, c CustomCollector) {
	pe.collectorsMu.Lock()
	defer pe.collectorsMu.Unlock()
	pe.collectors[name] = c
}

// UnregisterCollector removes a previously registered custom collector.
func (pe *PrometheusExporter) UnregisterCollector(name string) {
	pe.collectorsMu.Lock()
	defer pe.collectorsMu.Unlock()
	delete(pe.collectors, name)
}

// Handler returns an http.Handler that serves the configured path using
// the standard Prometheus text exposition format.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, promhttp.HandlerFor(pe.promReg, promhttp.HandlerOpts{}))
	return mux
}

// registrySnapshotCollector adapts a Registry (plus any CustomCollector
// producers) into a prometheus.Collector, snapshotting on every scrape so
// counters and gauges never go stale between registrations.
type registrySnapshotCollector struct {
	namespace string
	registry  *Registry
	exporter  *PrometheusExporter
}

func (c *registrySnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	// Dynamic metric set: descriptions are emitted lazily in Collect via
	// unchecked collection, so Describe intentionally sends nothing.
}

func (c *registrySnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Snapshot()

	for _, name := range sortedKeys(snap.Counters) {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[name]))
	}
	for _, name := range sortedKeys(snap.Gauges) {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(snap.Gauges[name]))
	}
	for _, name := range sortedKeys(snap.Histograms) {
		s := snap.Histograms[name]
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		// The Histogram type tracks count/sum/min/max/mean rather than
		// bucketed observations, so it is republished as a Prometheus
		// summary with no quantiles rather than a bucketed histogram.
		ch <- prometheus.MustNewConstSummary(desc, uint64(s.Count), s.Sum, nil)
	}

	c.exporter.collectorsMu.RLock()
	customCollectors := make(map[string]CustomCollector, len(c.exporter.collectors))
	for name, cc := range c.exporter.collectors {
		customCollectors[name] = cc
	}
	c.exporter.collectorsMu.RUnlock()

	for name, cc := range customCollectors {
		for _, line := range cc.Collect() {
			labelNames := make([]string, 0, len(line.Labels))
			labelValues := make([]string, 0, len(line.Labels))
			for _, k := range sortedLabelKeys(line.Labels) {
				labelNames = append(labelNames, k)
				labelValues = append(labelValues, line.Labels[k])
			}
			desc := prometheus.NewDesc(c.promName(line.Name), name+" custom collector", labelNames, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, line.Value, labelValues...)
		}
	}
}

func (c *registrySnapshotCollector) promName(name string) string {
	sanitized := sanitizeMetricName(name)
	if c.namespace != "" {
		return c.namespace + "_" + sanitized
	}
	return sanitized
}

func sanitizeMetricName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func sortedLabelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedKeys returns a sorted list of keys from a map of any metric type.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
