package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of a single dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one dependency. It should respect the context deadline.
type Check func(ctx context.Context) error

// Report is the aggregate health snapshot.
type Report struct {
	Healthy    bool                 `json:"healthy"`
	Components map[string]Component `json:"components"`
	CheckedAt  time.Time            `json:"checked_at"`
}

type Component struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Monitor runs registered dependency checks on demand. Results are
// cached briefly so probe storms do not hammer the stores.
type Monitor struct {
	timeout  time.Duration
	cacheFor time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	checks map[string]Check
	last   *Report
}

func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		timeout:  3 * time.Second,
		cacheFor: 5 * time.Second,
		logger:   logger,
		checks:   make(map[string]Check),
	}
}

// Register adds a named dependency check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Report runs all checks, reusing a recent snapshot when available.
func (m *Monitor) Report(ctx context.Context) Report {
	m.mu.Lock()
	if m.last != nil && time.Since(m.last.CheckedAt) < m.cacheFor {
		cached := *m.last
		m.mu.Unlock()
		return cached
	}
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.Unlock()

	report := Report{
		Healthy:    true,
		Components: make(map[string]Component, len(checks)),
		CheckedAt:  time.Now(),
	}

	var wg sync.WaitGroup
	var repMu sync.Mutex
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			comp := Component{Status: StatusHealthy}
			if err := check(checkCtx); err != nil {
				comp = Component{Status: StatusUnhealthy, Error: err.Error()}
				m.logger.Warn("dependency unhealthy",
					zap.String("component", name), zap.Error(err))
			}

			repMu.Lock()
			report.Components[name] = comp
			if comp.Status != StatusHealthy {
				report.Healthy = false
			}
			repMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report
}
