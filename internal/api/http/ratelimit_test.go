package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiterSweepsIdleEntries(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	now := time.Now()

	first := l.get("10.0.0.1", now.Add(-2*time.Hour))
	l.get("10.0.0.2", now)
	l.sweep(now)

	assert.Len(t, l.limiters, 1)
	assert.NotSame(t, first, l.get("10.0.0.1", now))
	assert.Same(t, l.get("10.0.0.2", now), l.get("10.0.0.2", now))
}
