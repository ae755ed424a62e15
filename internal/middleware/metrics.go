package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/pkg/metrics"
)

// unmatchedRoute replaces the path label for requests no route handled, so
// scanners probing random URLs cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics observes request latency by route template and tracks requests in flight.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.RequestsInFlight.Inc()
		start := time.Now()
		defer func() {
			metrics.RequestsInFlight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			metrics.APILatency.
				WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
				Observe(time.Since(start).Seconds())
		}()
		c.Next()
	}
}
