// Package handlers contains HTTP middleware and health checks for the
// registry API.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"
)

// HealthChecker reports whether the registry can issue identifiers.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks one dependency; a non-nil error marks it unhealthy.
type HealthCheckFunc func(ctx context.Context) error

// Pinger is anything with a liveness ping: the Postgres pool, the Redis
// client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// HealthStatus is the body of /health.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// CompositeHealthChecker runs every registered check in parallel, each with
// its own deadline.
type CompositeHealthChecker struct {
	version string
	timeout time.Duration
	clock   clock.Clock

	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

// NewCompositeHealthChecker creates a checker that gives every check at most
// timeout. A non-positive timeout means 3 seconds.
func NewCompositeHealthChecker(version string, timeout time.Duration) *CompositeHealthChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &CompositeHealthChecker{
		version: version,
		timeout: timeout,
		clock:   clock.WallClock,
		checks:  make(map[string]HealthCheckFunc),
	}
}

// Register adds or replaces the check called name.
func (c *CompositeHealthChecker) Register(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs all checks. The registry is healthy only if every check passes.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: c.clock.Now().UTC(),
		Version:   c.version,
	}

	var mu sync.Mutex
	var failed []string

	eg, egCtx := errgroup.WithContext(ctx)
	for name, check := range checks {
		eg.Go(func() error {
			result := c.run(egCtx, check)

			mu.Lock()
			defer mu.Unlock()
			status.Checks[name] = result
			if !result.Healthy {
				failed = append(failed, name)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		status.Healthy = false
		status.Message = "failing: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, check HealthCheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	err := check(ctx)
	result := CheckResult{
		Healthy: err == nil,
		Latency: c.clock.Now().Sub(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
