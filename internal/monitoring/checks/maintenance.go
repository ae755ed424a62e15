package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/licensewatch/internal/app/maintenance"
	"github.com/charlesng35/licensewatch/internal/monitoring"
)

const defaultSweepMaxAge = 48 * time.Hour

// SweepObserver exposes the outcome of the most recent expiry sweep.
type SweepObserver interface {
	SweepStatus() maintenance.JobStatus
}

// Sweep degrades readiness when the last expiry sweep failed or is older than maxAge.
// A sweep that has not run yet is reported as up.
func Sweep(observer SweepObserver, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultSweepMaxAge
	}
	now := time.Now

	return monitoring.NewCheck("expiry_sweep", func(context.Context) monitoring.ProbeResult {
		if observer == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "scheduler not configured"}
		}

		status := observer.SweepStatus()
		switch {
		case status.Runs == 0:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "pending first run"}
		case status.ConsecutiveFailures > 0:
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%d consecutive failures: %s", status.ConsecutiveFailures, status.LastError),
			}
		case now().Sub(status.LastRunAt) > maxAge:
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: "stale run " + status.LastRunAt.UTC().Format(time.RFC3339),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}
