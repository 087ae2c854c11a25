// Package metrics keeps counters, gauges and histograms and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds every series by name and label set.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	help       map[string]string
	namespace  string
	startTime  time.Time
}

func NewRegistry(namespace string) *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		help:       make(map[string]string),
		namespace:  namespace,
		startTime:  time.Now(),
	}
}

type Counter struct {
	name   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

type Gauge struct {
	name   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram keeps cumulative bucket counts; the +Inf bucket is implicit.
type Histogram struct {
	name    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Labels renders key/value pairs as a Prometheus label set, sorted by key.
func Labels(kv ...string) string {
	if len(kv)%2 != 0 {
		panic("metrics: Labels needs key/value pairs")
	}
	pairs := make([]string, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		v := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(kv[i+1])
		pairs = append(pairs, kv[i]+`="`+v+`"`)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (r *Registry) Counter(name, help, labels string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name + "{" + labels + "}"
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, labels: labels}
	r.counters[key] = c
	r.help[name] = help
	return c
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name + "{" + labels + "}"
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, labels: labels}
	r.gauges[key] = g
	r.help[name] = help
	return g
}

func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name + "{" + labels + "}"
	if h, ok := r.histograms[key]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{name: name, labels: labels, bounds: b, buckets: make([]int64, len(b))}
	r.histograms[key] = h
	r.help[name] = help
	return h
}

// Handler renders all series. Output is sorted so scrapes are stable.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, r.Render())
	}
}

func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	uptime := r.namespace + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(time.Since(r.startTime).Seconds()))

	header := func(name, kind string, seen map[string]bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, r.help[name])
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, kind)
	}
	series := func(name, labels string) string {
		if labels == "" {
			return name
		}
		return name + "{" + labels + "}"
	}

	seen := make(map[string]bool)
	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		header(c.name, "counter", seen)
		fmt.Fprintf(&sb, "%s %d\n", series(c.name, c.labels), c.Value())
	}
	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		header(g.name, "gauge", seen)
		fmt.Fprintf(&sb, "%s %d\n", series(g.name, g.labels), g.Value())
	}
	for _, key := range sortedKeys(r.histograms) {
		h := r.histograms[key]
		header(h.name, "histogram", seen)

		h.mu.Lock()
		sep := ""
		if h.labels != "" {
			sep = h.labels + ","
		}
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{%sle=\"%s\"} %d\n", h.name, sep, bound, h.buckets[i])
		}
		if len(h.bounds) == 0 || !math.IsInf(h.bounds[len(h.bounds)-1], 1) {
			fmt.Fprintf(&sb, "%s_bucket{%sle=\"+Inf\"} %d\n", h.name, sep, h.count)
		}
		fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(&sb, "%s %g\n", series(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
