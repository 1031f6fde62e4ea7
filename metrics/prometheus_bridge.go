package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector adapts a Registry to the prometheus.Collector
// interface so it can be registered with a real prometheus.Registry and
// scraped via promhttp, instead of a hand-rolled text exposition format.
type PrometheusCollector struct {
	reg       *Registry
	namespace string
}

// NewPrometheusCollector wraps reg for export under the given namespace
// (e.g. "triedb"). Metric names are translated by replacing "." with "_".
func NewPrometheusCollector(reg *Registry, namespace string) *PrometheusCollector {
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (c *PrometheusCollector) fqName(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	if c.namespace == "" {
		return sanitized
	}
	return c.namespace + "_" + sanitized
}

// Describe implements prometheus.Collector. The registry's metric set is
// dynamic, so descriptions are emitted lazily in Collect; Describe is a
// deliberate no-op (makes this an "unchecked" collector, same pattern
// used for dynamically-labeled collectors elsewhere in the ecosystem).
func (c *PrometheusCollector) Describe(_ chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector by snapshotting the underlying
// Registry and emitting one prometheus metric per entry.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.reg.Snapshot() {
		fq := c.fqName(name)
		switch val := v.(type) {
		case int64:
			desc := prometheus.NewDesc(fq, name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(val))
		case map[string]interface{}:
			for stat, sv := range val {
				var f float64
				switch s := sv.(type) {
				case float64:
					f = s
				case int64:
					f = float64(s)
				default:
					continue
				}
				desc := prometheus.NewDesc(fq+"_"+stat, name+" "+stat, nil, nil)
				ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f)
			}
		}
	}
}
