package checks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings the primary database within timeout. A reachable database
// whose pool made callers wait since the previous probe is reported degraded.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	var (
		mu       sync.Mutex
		lastWait int64
	)

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		result := monitoring.ResultFromError("database", sqlDB.PingContext(probeCtx), time.Since(start))
		if result.Status != monitoring.StatusUp {
			return result
		}

		stats := sqlDB.Stats()
		mu.Lock()
		waited := stats.WaitCount - lastWait
		lastWait = stats.WaitCount
		mu.Unlock()

		if saturated(stats, waited) {
			result.Status = monitoring.StatusDegraded
			result.Details = fmt.Sprintf("pool saturated: %d/%d in use, %d waits", stats.InUse, stats.MaxOpenConnections, waited)
		}
		return result
	})
}

func saturated(stats sql.DBStats, waited int64) bool {
	return stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections && waited > 0
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
