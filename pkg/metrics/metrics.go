package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Dependency-free metrics with Prometheus text exposition.
// Keep implementation minimal: atomic values, mutex-protected registry.

// Counter is a monotonically increasing number.
type Counter struct {
	name string
	help string
	val  int64
}

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.val, delta) }
func (c *Counter) Get() int64      { return atomic.LoadInt64(&c.val) }

// Gauge is an arbitrary number that can go up and down.
// Stored as float64 bits for atomic access.
type Gauge struct {
	name string
	help string
	bits uint64
}

func (g *Gauge) SetFloat64(v float64) { atomic.StoreUint64(&g.bits, math.Float64bits(v)) }
func (g *Gauge) AddFloat64(delta float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		nv := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&g.bits, old, math.Float64bits(nv)) {
			return
		}
	}
}
func (g *Gauge) GetFloat64() float64 { return math.Float64frombits(atomic.LoadUint64(&g.bits)) }

// Histogram with fixed cumulative buckets plus sum/count.
type Histogram struct {
	name    string
	help    string
	bounds  []float64 // sorted ascending upper bounds
	counts  []uint64
	sumBits uint64
	count   uint64
}

func (h *Histogram) Observe(v float64) {
	idx := len(h.counts) - 1
	for i, ub := range h.bounds {
		if v <= ub {
			idx = i
			break
		}
	}
	atomic.AddUint64(&h.counts[idx], 1)
	atomic.AddUint64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sumBits)
		nv := math.Float64frombits(old) + v
		if atomic.CompareAndSwapUint64(&h.sumBits, old, math.Float64bits(nv)) {
			return
		}
	}
}

// Registry holds named metrics. Names must be unique across kinds.
type Registry struct {
	mu     sync.Mutex
	counts map[string]*Counter
	gauges map[string]*Gauge
	hists  map[string]*Histogram
}

func NewRegistry() *Registry {
	return &Registry{
		counts: make(map[string]*Counter),
		gauges: make(map[string]*Gauge),
		hists:  make(map[string]*Histogram),
	}
}

// Default is the process-wide registry used unless callers need isolation.
var Default = NewRegistry()

func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counts[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counts[name] = c
	return c
}

func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hists[name]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{name: name, help: help, bounds: sorted, counts: make([]uint64, len(sorted)+1)}
	r.hists[name] = h
	return h
}

// Expose renders all metrics in Prometheus text exposition format.
func (r *Registry) Expose() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder

	names := make([]string, 0, len(r.counts))
	for n := range r.counts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := r.counts[n]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", n, c.help, n, n, c.Get())
	}

	names = names[:0]
	for n := range r.gauges {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		g := r.gauges[n]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", n, g.help, n, n, g.GetFloat64())
	}

	names = names[:0]
	for n := range r.hists {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h := r.hists[n]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", n, h.help, n)
		var cum uint64
		for i, ub := range h.bounds {
			cum += atomic.LoadUint64(&h.counts[i])
			fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", n, ub, cum)
		}
		cum += atomic.LoadUint64(&h.counts[len(h.counts)-1])
		fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", n, cum)
		fmt.Fprintf(&sb, "%s_sum %g\n", n, math.Float64frombits(atomic.LoadUint64(&h.sumBits)))
		fmt.Fprintf(&sb, "%s_count %d\n", n, atomic.LoadUint64(&h.count))
	}

	return sb.String()
}

// Handler serves the default registry in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(Default.Expose()))
	})
}
