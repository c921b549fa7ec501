package http

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

// ipRateLimiter keeps one token bucket per client IP and forgets IPs that
// have been idle for an hour.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     time.Hour,
	}
}

func (l *ipRateLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

func (l *ipRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > l.idle {
			delete(l.limiters, ip)
		}
	}
}

// cleanup runs sweep every interval until ctx is done.
func (l *ipRateLimiter) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// RateLimitMiddleware limits unauthenticated auth endpoints per client IP.
// A non-positive rps disables it. The cleanup goroutine stops with ctx.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, logger *zap.Logger) fiber.Handler {
	if rps <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	limiter := newIPRateLimiter(rps, burst)
	go limiter.cleanup(ctx, 5*time.Minute)

	return func(c *fiber.Ctx) error {
		ip := c.IP()
		lim := limiter.get(ip, time.Now())
		if lim.Allow() {
			return c.Next()
		}

		reservation := lim.Reserve()
		retryAfter := int(math.Ceil(reservation.Delay().Seconds()))
		reservation.Cancel()

		logger.Debug("rate limit exceeded", zap.String("client_ip", ip), zap.Int("retry_after", retryAfter))
		return apperrors.NewRateLimited("too many requests, retry later", retryAfter)
	}
}
