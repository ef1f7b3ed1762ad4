package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"referralhub/internal/config"
	"referralhub/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewIPRateLimiter(cfg config.RateLimitConfig) *IPRateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.visitors[ip] = v
		l.sweep(now)
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops idle buckets; called with mu held whenever a new visitor arrives.
func (l *IPRateLimiter) sweep(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPRateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(1 / float64(l.limit)))
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimit rejects clients over their budget with 429. A non-positive rate disables limiting.
func RateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.limit <= 0 {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			response.TooManyRequests(c, "too many requests, please slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
