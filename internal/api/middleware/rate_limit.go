package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sergeiliashko/zero2prod/pkg/response"
)

const (
	limiterMaxIdle       = time.Hour
	limiterSweepInterval = 10 * time.Minute
)

// ipLimiters 按 IP 的令牌桶集合；闲置条目定期清掉，防止 map 无限增长
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*ipLimiterEntry
	r       rate.Limit
	burst   int
}

type ipLimiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(r rate.Limit, burst int) *ipLimiters {
	return &ipLimiters{entries: make(map[string]*ipLimiterEntry), r: r, burst: burst}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipLimiterEntry{lim: rate.NewLimiter(l.r, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.lim.Allow()
}

// sweep 删除闲置超过 maxIdle 的条目
func (l *ipLimiters) sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}

// RateLimitPerIP 按客户端 IP 的令牌桶限流（登录等敏感入口用）
func RateLimitPerIP(r rate.Limit, burst int) gin.HandlerFunc {
	limiters := newIPLimiters(r, burst)
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			limiters.sweep(limiterMaxIdle)
		}
	}()

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
