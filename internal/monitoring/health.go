// Package monitoring evaluates readiness probes for the service's dependencies.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/licensewatch/pkg/metrics"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Success is false when any probe is not up.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager holds the readiness probes registered at start-up.
type HealthManager struct {
	mu           sync.RWMutex
	checks       []Check
	probeTimeout time.Duration
	now          func() time.Time
}

// ManagerOption customises a HealthManager.
type ManagerOption func(*HealthManager)

// WithProbeTimeout bounds each probe. Probes still running at the deadline
// see a cancelled context.
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *HealthManager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager(opts ...ManagerOption) *HealthManager {
	m := &HealthManager{probeTimeout: defaultProbeTimeout, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

const defaultProbeTimeout = 5 * time.Second

// Register appends a readiness probe. Unnamed checks are ignored.
func (m *HealthManager) Register(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.checks = append(m.checks, check)
	m.mu.Unlock()
}

// Components lists the registered probe names in registration order.
func (m *HealthManager) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for _, check := range m.checks {
		names = append(names, check.Name)
	}
	return names
}

// Evaluate runs every probe concurrently and reports them in registration
// order. The worst status wins.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]ProbeResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			defer cancel()
			results[i] = runCheck(probeCtx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Success:   true,
		Status:    StatusUp,
		Checks:    results,
		CheckedAt: m.now().UTC(),
	}
	for _, result := range results {
		metrics.ProbeStatus.WithLabelValues(result.Component).Set(result.Status.score())
		if result.Status.score() < report.Status.score() {
			report.Status = result.Status
		}
	}
	report.Success = report.Status == StatusUp
	return report
}

func (s ProbeStatus) score() float64 {
	switch s {
	case StatusUp:
		return 1
	case StatusDegraded:
		return 0.5
	}
	return 0
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

// ResultFromError converts a probe error into a result. Timeouts degrade rather than fail.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}

	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
