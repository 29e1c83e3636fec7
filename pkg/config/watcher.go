package config

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"nutrition-enrichment/pkg/metrics"
)

// Change describes a configuration update event. Only a subset of fields may
// have changed; see Fields for the list of keys.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

// Subscriber channel buffer size; small to apply back-pressure if receivers
// are slow.
const subBuf = 4

// Watcher periodically reloads configuration from the environment and an
// optional env-style file. If CONFIG_FILE is set, its variables are re-applied
// to the process environment whenever the file's mtime changes.
//
// Polling keeps this simple; the worker only hot-applies batch knobs.
type Watcher struct {
	mu        sync.RWMutex
	cur       *Config
	closed    bool
	intv      time.Duration
	subs      []chan Change
	cancel    context.CancelFunc
	filePath  string
	lastMTime time.Time

	mReloads  *metrics.Counter
	mFailures *metrics.Counter
}

func NewWatcher(interval time.Duration) *Watcher {
	w := &Watcher{
		intv:      interval,
		filePath:  strings.TrimSpace(os.Getenv("CONFIG_FILE")),
		mReloads:  metrics.Default.Counter("config_reload_total", "Total number of config reload attempts"),
		mFailures: metrics.Default.Counter("config_reload_failures_total", "Total number of failed config reloads"),
	}
	w.cur = Load()
	return w
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Subscribe returns a channel receiving Change notifications. Channels are
// closed on Stop.
func (w *Watcher) Subscribe() <-chan Change {
	ch := make(chan Change, subBuf)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Start begins the polling loop.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
}

// Stop halts polling and closes subscriber channels.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

func (w *Watcher) loop(ctx context.Context) {
	t := time.NewTicker(w.intv)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	w.mReloads.Inc(1)

	if w.filePath != "" {
		if err := w.applyEnvFileIfChanged(); err != nil {
			w.mFailures.Inc(1)
			w.publish(Change{Err: err})
			return
		}
	}

	next := Load()
	w.mu.Lock()
	prev := w.cur
	fields := diff(prev, next)
	if len(fields) > 0 {
		w.cur = next
	}
	w.mu.Unlock()

	if len(fields) > 0 {
		w.publish(Change{Old: prev, New: next, Fields: fields})
	}
}

func (w *Watcher) publish(c Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	for _, ch := range w.subs {
		select {
		case ch <- c:
		default:
			// slow subscriber; drop rather than block the loop
		}
	}
}

// applyEnvFileIfChanged re-reads the env file into the process environment
// when its modification time advances.
func (w *Watcher) applyEnvFileIfChanged() error {
	st, err := os.Stat(w.filePath)
	if err != nil {
		return err
	}
	if !st.ModTime().After(w.lastMTime) {
		return nil
	}
	w.lastMTime = st.ModTime()

	f, err := os.Open(w.filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		_ = os.Setenv(strings.TrimSpace(k), strings.Trim(strings.TrimSpace(v), `"'`))
	}
	return sc.Err()
}

// diff lists the hot-reloadable fields that changed between two configs.
func diff(a, b *Config) []string {
	var fields []string
	if a.BatchSize != b.BatchSize {
		fields = append(fields, "BatchSize")
	}
	if a.RecordDelay != b.RecordDelay {
		fields = append(fields, "RecordDelay")
	}
	if a.RescoreThreshold != b.RescoreThreshold {
		fields = append(fields, "RescoreThreshold")
	}
	if a.MaxTransientRetries != b.MaxTransientRetries {
		fields = append(fields, "MaxTransientRetries")
	}
	if a.LogLevel != b.LogLevel {
		fields = append(fields, "LogLevel")
	}
	return fields
}
