package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL is how long an address may stay silent before its limiter is dropped.
const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter for each IP address.
type IPRateLimiter struct {
	ips map[string]*visitor
	mu  *sync.RWMutex
	r   rate.Limit
	b   int
	now func() time.Time

	lastPrune time.Time
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:       make(map[string]*visitor),
		mu:        &sync.RWMutex{},
		r:         r,
		b:         b,
		now:       time.Now,
		lastPrune: time.Now(),
	}
}

// AddIP creates a new rate limiter for an IP address.
func (i *IPRateLimiter) AddIP(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if v, ok := i.ips[ip]; ok {
		v.lastSeen = now
		return v.limiter
	}
	if now.Sub(i.lastPrune) > idleTTL {
		i.pruneLocked(idleTTL)
	}
	limiter := rate.NewLimiter(i.r, i.b)
	i.ips[ip] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

// GetLimiter returns the rate limiter for an IP address.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	return i.AddIP(ip)
}

// Prune forgets addresses idle for longer than maxIdle and returns how many were removed.
func (i *IPRateLimiter) Prune(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pruneLocked(maxIdle)
}

func (i *IPRateLimiter) pruneLocked(maxIdle time.Duration) int {
	now := i.now()
	i.lastPrune = now
	cutoff := now.Add(-maxIdle)
	removed := 0
	for ip, v := range i.ips {
		if v.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked addresses.
func (i *IPRateLimiter) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.ips)
}

// Middleware rejects requests from an address that exceeded its budget.
func (i *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !i.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	return NewIPRateLimiter(r, b).Middleware()
}
