package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nutrition-enrichment/pkg/logging"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth represents the overall system health.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker defines the interface for health check functions.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// CheckFunc adapts a function into a Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func (cf CheckFunc) Check(ctx context.Context) ComponentHealth { return cf.fn(ctx) }
func (cf CheckFunc) Name() string                              { return cf.name }

func NewCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) Checker {
	return CheckFunc{name: name, fn: fn}
}

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	checkers  map[string]Checker
	startTime time.Time
	timeout   time.Duration
	logger    *logging.Logger
	mu        sync.RWMutex
}

func NewManager(timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		checkers:  make(map[string]Checker),
		startTime: time.Now(),
		timeout:   timeout,
		logger:    logger.WithComponent("health"),
	}
}

func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[checker.Name()] = checker
	m.logger.Info("Registered health checker", logging.String("checker", checker.Name()))
}

// CheckAll runs all checkers concurrently and aggregates the result.
func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results <- c.Check(checkCtx)
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	components := make(map[string]ComponentHealth)
	for r := range results {
		components[r.Name] = r
	}

	return SystemHealth{
		Status:     overall(components),
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
		Components: components,
	}
}

func overall(components map[string]ComponentHealth) Status {
	if len(components) == 0 {
		return StatusUnknown
	}
	status := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		case StatusUnknown:
			if status == StatusHealthy {
				status = StatusUnknown
			}
		}
	}
	return status
}

// Handler serves the aggregated health as JSON. Unhealthy maps to 503.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.CheckAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if h.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(h)
	})
}

// DatabaseChecker checks record store connectivity.
type DatabaseChecker struct {
	db   *sql.DB
	name string
}

func NewDatabaseChecker(db *sql.DB, name string) *DatabaseChecker {
	return &DatabaseChecker{db: db, name: name}
}

func (dc *DatabaseChecker) Name() string { return dc.name }

func (dc *DatabaseChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	result := ComponentHealth{
		Name:        dc.name,
		LastChecked: time.Now(),
		Metadata:    make(map[string]any),
	}

	if err := dc.db.PingContext(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Database connection failed"
		result.Duration = time.Since(start)
		return result
	}

	var one int
	if err := dc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Message = "Database query failed"
	} else {
		result.Status = StatusHealthy
		result.Message = "Database connection successful"
	}

	stats := dc.db.Stats()
	result.Metadata["open_connections"] = stats.OpenConnections
	result.Metadata["in_use"] = stats.InUse
	result.Metadata["idle"] = stats.Idle
	result.Metadata["wait_count"] = stats.WaitCount

	result.Duration = time.Since(start)
	return result
}

// RunnerChecker reports the batch runner's current statistics.
type RunnerChecker struct {
	getStats func() any
	name     string
}

func NewRunnerChecker(name string, getStats func() any) *RunnerChecker {
	return &RunnerChecker{getStats: getStats, name: name}
}

func (rc *RunnerChecker) Name() string { return rc.name }

func (rc *RunnerChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	result := ComponentHealth{
		Name:        rc.name,
		LastChecked: time.Now(),
		Metadata:    make(map[string]any),
	}

	if rc.getStats != nil {
		result.Metadata["stats"] = rc.getStats()
		result.Status = StatusHealthy
		result.Message = "Runner is available"
	} else {
		result.Status = StatusUnknown
		result.Message = "Unable to get runner statistics"
	}

	result.Duration = time.Since(start)
	return result
}
