package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	pp "net/http/pprof"
)

// RequestStats provides lightweight in-memory stats for request durations.
type RequestStats struct {
	mu        sync.Mutex
	durations []float64 // milliseconds, circular buffer of last N
	idx       int
	count     int64
	n         int
}

func NewRequestStats(capacity int) *RequestStats {
	if capacity <= 0 {
		capacity = 256
	}
	return &RequestStats{durations: make([]float64, capacity), n: capacity}
}

// Observe adds a duration sample (in milliseconds).
func (m *RequestStats) Observe(ms float64) {
	m.mu.Lock()
	m.durations[m.idx] = ms
	m.idx = (m.idx + 1) % m.n
	m.count++
	m.mu.Unlock()
}

// Snapshot returns basic stats including quantiles for recent samples.
func (m *RequestStats) Snapshot() (count int64, avg, p50, p95 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var samples []float64
	if m.count < int64(m.n) {
		samples = append(samples, m.durations[:m.idx]...)
	} else {
		samples = append(samples, m.durations...)
	}
	if len(samples) == 0 {
		return m.count, 0, 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	avg = sum / float64(len(samples))
	cp := make([]float64, len(samples))
	copy(cp, samples)
	sort.Float64s(cp)
	p50 = cp[(len(cp)*50)/100]
	p95 = cp[(len(cp)*95)/100]
	return m.count, avg, p50, p95
}

type statusWriter struct {
	w          http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) Header() http.Header         { return sw.w.Header() }
func (sw *statusWriter) Write(b []byte) (int, error) { return sw.w.Write(b) }
func (sw *statusWriter) WriteHeader(statusCode int) {
	sw.statusCode = statusCode
	sw.w.WriteHeader(statusCode)
}

// Middleware measures request duration and records it into RequestStats.
// Keep it simple; we don't track labels.
func Middleware(m *RequestStats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{w: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.Observe(time.Since(start).Seconds() * 1000.0)
		})
	}
}

// RuntimeHandler exposes runtime and request stats in JSON for quick consumption.
func RuntimeHandler(m *RequestStats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		count, avg, p50, p95 := m.Snapshot()
		resp := map[string]any{
			"time":             time.Now().Format(time.RFC3339),
			"requests_total":   count,
			"duration_ms_avg":  avg,
			"duration_ms_p50":  p50,
			"duration_ms_p95":  p95,
			"goroutines":       runtime.NumGoroutine(),
			"mem_alloc_bytes":  ms.Alloc,
			"heap_inuse_bytes": ms.HeapInuse,
			"gc_num":           ms.NumGC,
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// RegisterPprof registers the standard pprof handlers on the provided mux.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pp.Trace)
	mux.Handle("/debug/pprof/goroutine", pp.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pp.Handler("heap"))
	mux.Handle("/debug/pprof/block", pp.Handler("block"))
	mux.Handle("/debug/pprof/mutex", pp.Handler("mutex"))
}

// EnableProfiling toggles runtime profiling rates for block/mutex when enabled.
func EnableProfiling(enabled bool) {
	if enabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(5)
	} else {
		runtime.SetBlockProfileRate(0)
		runtime.SetMutexProfileFraction(0)
	}
}
