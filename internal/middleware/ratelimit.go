package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per client IP in fixed windows. Stale entries
// are pruned on the request path; there is no background goroutine.
type RateLimiter struct {
	requests  map[string]*clientLimit
	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	lastPrune time.Time
}

type clientLimit struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(requestsPerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*clientLimit),
		limit:    requestsPerWindow,
		window:   window,
		now:      time.Now,
	}
}

// allow records a request from key and reports whether it is within the
// limit, together with the seconds until the window resets.
func (rl *RateLimiter) allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > rl.window {
		for k, l := range rl.requests {
			if now.After(l.resetTime) {
				delete(rl.requests, k)
			}
		}
		rl.lastPrune = now
	}

	l, ok := rl.requests[key]
	if !ok || now.After(l.resetTime) {
		rl.requests[key] = &clientLimit{count: 1, resetTime: now.Add(rl.window)}
		return true, 0
	}
	if l.count >= rl.limit {
		return false, int(l.resetTime.Sub(now).Seconds()) + 1
	}
	l.count++
	return true, 0
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
