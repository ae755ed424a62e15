package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/pkg/response"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(2, 100*time.Millisecond))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/other", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	// First two requests pass
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do("/ping").Code)
	}

	// Third request within window is rate-limited
	w := do("/ping")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", payload.Error.Code)

	// Buckets are per route
	require.Equal(t, http.StatusOK, do("/other").Code)

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, http.StatusOK, do("/ping").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiterSetSweepsIdleVisitors(t *testing.T) {
	set := newLimiterSet(1, time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return now }

	set.get("a")
	now = now.Add(limiterIdleTTL + time.Second)
	set.get("b")
	set.sweep()

	require.Len(t, set.visitors, 1)
	require.Contains(t, set.visitors, "b")
}
