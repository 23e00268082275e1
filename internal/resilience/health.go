package resilience

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency_ns"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthReport is the outcome of running every registered check.
type HealthReport struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

// HealthMonitor runs registered component checks on demand.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	startTime time.Time
	now       func() time.Time
}

// NewHealthMonitor creates a health monitor.
func NewHealthMonitor(now func() time.Time) *HealthMonitor {
	if now == nil {
		now = time.Now
	}
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		startTime: now(),
		now:       now,
	}
}

// Register adds or replaces a named check.
func (h *HealthMonitor) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every check in name order. The overall status is the worst
// component status; a panicking check counts as unhealthy.
func (h *HealthMonitor) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{
		Status:     HealthStatusHealthy,
		Uptime:     h.now().Sub(h.startTime).Round(time.Second).String(),
		Components: make([]ComponentHealth, 0, len(names)),
	}
	for _, name := range names {
		c := h.run(ctx, name, checks[name])
		if c.Status.rank() > report.Status.rank() {
			report.Status = c.Status
		}
		report.Components = append(report.Components, c)
	}
	return report
}

func (h *HealthMonitor) run(ctx context.Context, name string, check HealthCheck) (c ComponentHealth) {
	start := h.now()
	defer func() {
		if r := recover(); r != nil {
			c = ComponentHealth{Name: name, Status: HealthStatusUnhealthy, Message: "check panicked"}
		}
		c.Name = name
		c.LastCheck = start
		c.Latency = h.now().Sub(start)
		if c.Status == "" {
			c.Status = HealthStatusHealthy
		}
	}()
	return check(ctx)
}

// LimiterCheck reports a category as degraded while its window is
// exhausted.
func LimiterCheck(l *Limiter, category Category) HealthCheck {
	return func(context.Context) ComponentHealth {
		w, ok := l.Snapshot(category)
		if !ok {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "unknown category"}
		}
		if w.Remaining() == 0 && !l.now().After(w.ResetTime) {
			return ComponentHealth{Status: HealthStatusDegraded, Message: "request budget exhausted until " + w.ResetTime.Format(time.RFC3339)}
		}
		return ComponentHealth{Status: HealthStatusHealthy}
	}
}
