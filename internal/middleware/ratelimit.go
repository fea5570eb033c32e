package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/menulive/internal/apierr"
)

// staleLimiterAge is how long an idle client keeps its limiter.
const staleLimiterAge = 3 * time.Minute

// RateLimiter enforces a global and a per-client-IP request rate.
type RateLimiter struct {
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter. A non-positive globalRate disables the global limit.
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		ipRate:  rate.Limit(ipRate),
		ipBurst: ipBurst,
		perIP:   make(map[string]*ipLimiter),
	}
	if globalRate > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalRate), globalBurst)
	}
	return rl
}

// RunCleanup drops idle per-IP limiters every minute until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.prune(now)
		}
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.perIP {
		if now.Sub(l.lastSeen) > staleLimiterAge {
			delete(rl.perIP, ip)
		}
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// Limit returns a middleware handler that enforces rate limits.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.global != nil && !rl.global.Allow() {
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
			return
		}
		if !rl.limiterFor(clientIP(r)).Allow() {
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers proxy headers and falls back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
