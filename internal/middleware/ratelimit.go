package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet keeps one token bucket per (clientIP,route).
type limiterSet struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func newLimiterSet(maxRequests int, window time.Duration) *limiterSet {
	return &limiterSet{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		now:      time.Now,
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.every, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *limiterSet) sweep() {
	cutoff := s.now().Add(-limiterIdleTTL)
	s.mu.Lock()
	for key, v := range s.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(s.visitors, key)
		}
	}
	s.mu.Unlock()
}

// RateLimit allows maxRequests per window for each (clientIP,path) pair.
// Buckets refill continuously, so the full allowance returns after one window.
// This is an in-memory limiter suitable for single-instance deployments and tests.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	set := newLimiterSet(maxRequests, window)
	go func() {
		tick := time.NewTicker(limiterIdleTTL)
		defer tick.Stop()
		for range tick.C {
			set.sweep()
		}
	}()

	return func(c *gin.Context) {
		limiter := set.get(c.ClientIP() + "|" + c.FullPath())
		allowed := limiter.Allow()
		remaining := int(math.Max(0, math.Floor(limiter.Tokens())))

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(window.Seconds()/float64(maxRequests)))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
