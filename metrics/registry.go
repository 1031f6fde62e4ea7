package metrics

import "sync"

// Registry holds every metric in use, keyed by name within its own kind.
// Metrics are created lazily on first access so callers never need a
// separate registration step or a nil check.
type Registry struct {
	counters   typedSet[*Counter]
	gauges     typedSet[*Gauge]
	histograms typedSet[*Histogram]
}

// DefaultRegistry is the process-wide registry the package-level metrics in
// standard.go register into.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   newTypedSet(NewCounter),
		gauges:     newTypedSet(NewGauge),
		histograms: newTypedSet(NewHistogram),
	}
}

// Counter returns the Counter registered under name, creating it on first use.
func (r *Registry) Counter(name string) *Counter { return r.counters.getOrCreate(name) }

// Gauge returns the Gauge registered under name, creating it on first use.
func (r *Registry) Gauge(name string) *Gauge { return r.gauges.getOrCreate(name) }

// Histogram returns the Histogram registered under name, creating it on first use.
func (r *Registry) Histogram(name string) *Histogram { return r.histograms.getOrCreate(name) }

// Snapshot returns a point-in-time copy of every metric value in the
// registry, keyed by metric name. Counters and gauges snapshot to int64;
// histograms snapshot to a map carrying count/sum/min/max/mean.
func (r *Registry) Snapshot() map[string]interface{} {
	snap := make(map[string]interface{}, r.counters.len()+r.gauges.len()+r.histograms.len())
	r.counters.each(func(name string, c *Counter) { snap[name] = c.Value() })
	r.gauges.each(func(name string, g *Gauge) { snap[name] = g.Value() })
	r.histograms.each(func(name string, h *Histogram) {
		snap[name] = map[string]interface{}{
			"count": h.Count(),
			"sum":   h.Sum(),
			"min":   h.Min(),
			"max":   h.Max(),
			"mean":  h.Mean(),
		}
	})
	return snap
}

// typedSet is a get-or-create map for one metric kind, shared by Counter,
// Gauge, and Histogram so the registry doesn't repeat the same double-checked
// locking three times over.
type typedSet[M any] struct {
	mu     *sync.RWMutex
	items  map[string]M
	create func(string) M
}

func newTypedSet[M any](create func(string) M) typedSet[M] {
	return typedSet[M]{mu: &sync.RWMutex{}, items: make(map[string]M), create: create}
}

func (s typedSet[M]) getOrCreate(name string) M {
	s.mu.RLock()
	m, ok := s.items[name]
	s.mu.RUnlock()
	if ok {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok = s.items[name]; ok {
		return m
	}
	m = s.create(name)
	s.items[name] = m
	return m
}

func (s typedSet[M]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s typedSet[M]) each(fn func(name string, m M)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, m := range s.items {
		fn(name, m)
	}
}
