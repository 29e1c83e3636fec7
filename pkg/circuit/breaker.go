// Package circuit implements a small circuit breaker for external calls.
// Closed: normal operation; Open: fail fast; HalfOpen: single probe allowed.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"nutrition-enrichment/pkg/logging"
	"nutrition-enrichment/pkg/metrics"
)

// State represents the breaker state. Keep enums simple for logging/metrics.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config tunes a breaker instance.
type Config struct {
	Name string

	OperationTimeout  time.Duration // per-call timeout
	OpenFor           time.Duration // how long to stay open before probing
	MaxConsecFailures int           // consecutive failures to open
	WindowSize        int           // sliding window of recent calls
	FailureRate       float64       // 0..1 fraction in window to open
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

type sample struct {
	success bool
}

type Breaker struct {
	cfg        Config
	mu         sync.Mutex
	st         State
	nextProbe  time.Time
	consecFail int

	win  []sample
	idx  int
	used int

	log *logging.Logger

	mState   *metrics.Gauge
	mOpen    *metrics.Counter
	mSuccess *metrics.Counter
	mFailure *metrics.Counter
	mLatency *metrics.Histogram
}

func New(cfg Config, log *logging.Logger) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	b := &Breaker{
		cfg:      cfg,
		st:       Closed,
		win:      make([]sample, cfg.WindowSize),
		log:      log,
		mState:   metrics.Default.Gauge("cb_"+cfg.Name+"_state", "Circuit breaker state (0=closed,1=open,2=half-open)"),
		mOpen:    metrics.Default.Counter("cb_"+cfg.Name+"_opens", "Circuit opened events"),
		mSuccess: metrics.Default.Counter("cb_"+cfg.Name+"_success", "Successful calls through circuit"),
		mFailure: metrics.Default.Counter("cb_"+cfg.Name+"_failure", "Failed calls through circuit"),
		mLatency: metrics.Default.Histogram("cb_"+cfg.Name+"_latency_ms", "Latency of calls (ms)", []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}),
	}
	b.mState.SetFloat64(0)
	return b
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	switch st {
	case Open:
		b.mOpen.Inc(1)
		b.mState.SetFloat64(1)
	case HalfOpen:
		b.mState.SetFloat64(2)
	case Closed:
		b.mState.SetFloat64(0)
	}
	if b.log != nil {
		b.log.Info("breaker state change", logging.String("name", b.cfg.Name), logging.Int("state", int(st)))
	}
}

// record adds a sample to the window and opens the breaker when thresholds trip.
func (b *Breaker) record(success bool) {
	b.win[b.idx] = sample{success: success}
	if b.used < len(b.win) {
		b.used++
	}
	b.idx = (b.idx + 1) % len(b.win)

	if b.st != Closed {
		return
	}
	if b.cfg.MaxConsecFailures > 0 && b.consecFail >= b.cfg.MaxConsecFailures {
		b.setStateLocked(Open)
		b.nextProbe = time.Now().Add(b.cfg.OpenFor)
		return
	}
	if b.cfg.FailureRate > 0 && b.used > 0 {
		fail := 0
		for i := 0; i < b.used; i++ {
			if !b.win[i].success {
				fail++
			}
		}
		if float64(fail)/float64(b.used) >= b.cfg.FailureRate {
			b.setStateLocked(Open)
			b.nextProbe = time.Now().Add(b.cfg.OpenFor)
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// Do runs op under the breaker. If open, returns ErrOpen.
// op should return error only; outputs are captured via closure vars.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.st == Open {
		if time.Now().Before(b.nextProbe) {
			b.mu.Unlock()
			return ErrOpen
		}
		b.setStateLocked(HalfOpen)
	}
	b.mu.Unlock()

	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	err := op(ctx)
	b.mLatency.Observe(float64(time.Since(start) / time.Millisecond))

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.consecFail++
		b.mFailure.Inc(1)
		b.record(false)
		if b.st == HalfOpen {
			// probe failed, back to open
			b.setStateLocked(Open)
			b.nextProbe = time.Now().Add(b.cfg.OpenFor)
		}
		return err
	}

	b.consecFail = 0
	b.mSuccess.Inc(1)
	b.record(true)
	if b.st == HalfOpen {
		b.setStateLocked(Closed)
	}
	return nil
}
