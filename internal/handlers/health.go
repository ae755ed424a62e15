package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/monitoring"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
)

var errServiceUnavailable = errors.New("SERVICE_UNAVAILABLE", "One or more dependencies are unhealthy", http.StatusServiceUnavailable)

// Health evaluates the registered readiness probes. Any probe that is not up yields 503
// with the full report in the error details.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			response.Error(c, errors.ErrNotFound)
			return
		}
		report := manager.Evaluate(requestContext(c))
		if !report.Success {
			response.ErrorWithDetails(c, errServiceUnavailable, report)
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}

// Liveness answers as long as the process can serve requests.
func Liveness(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status":     monitoring.StatusUp,
		"checked_at": time.Now().UTC(),
	})
}
