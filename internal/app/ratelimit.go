package app

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"pressdeck/api/internal/metrics"
)

// ipLimiter keeps a token-bucket limiter per client IP, used to slow down
// password guessing on the login endpoint.
type ipLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{rps: rps, burst: burst}
}

func (l *ipLimiter) allow(key string) bool {
	v, ok := l.limiters.Load(key)
	if !ok {
		v, _ = l.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(l.rps), l.burst))
	}
	allowed := v.(*rate.Limiter).Allow()
	if allowed {
		metrics.RateLimitAllowed.WithLabelValues("login").Inc()
	} else {
		metrics.RateLimitRejected.WithLabelValues("login").Inc()
	}
	return allowed
}

// clientIP prefers the first X-Forwarded-For hop (the service runs behind a
// proxy in production) and falls back to the socket peer address.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
