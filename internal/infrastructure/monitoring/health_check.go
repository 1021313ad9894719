package monitoring

import (
	"context"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck probes one dependency. A false result or an error marks the
// whole service unhealthy.
type HealthCheck struct {
	Name    string
	Probe   func(ctx context.Context) (bool, error)
	Timeout time.Duration
}

// HealthStatus is the aggregate of one CheckAll pass.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker runs registered probes on demand.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, probe func(ctx context.Context) (bool, error), timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h.mu.Lock()
	h.checks = append(h.checks, HealthCheck{Name: name, Probe: probe, Timeout: timeout})
	h.mu.Unlock()
}

// CheckAll runs every probe and aggregates the results.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, check.Timeout)
		healthy, err := check.Probe(probeCtx)
		cancel()

		switch {
		case err != nil:
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = err.Error()
		case !healthy:
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = "check failed"
		default:
			status.Checks[check.Name] = StatusHealthy
		}
	}

	return status
}
