package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by callers of one rate-limited backend.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a limiter admitting perSecond events with the given
// burst. A non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{inner: rate.NewLimiter(limit, burst)}
}

// Allow reports whether one event may happen now without waiting.
func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}

// Delay returns how long a caller would wait for the next token, without
// consuming it.
func (l *Limiter) Delay() time.Duration {
	r := l.inner.Reserve()
	defer r.Cancel()
	return r.Delay()
}
