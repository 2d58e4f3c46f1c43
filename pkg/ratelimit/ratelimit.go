// Package ratelimit provides the global admission control for outbound
// scan traffic. A single Limiter is shared by every worker of a scan
// session; callers block in Wait until a token is available.
//
// The token bucket itself is golang.org/x/time/rate. This package adds
// adaptive slowdown on throttling responses (429/503) and statistics.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/duration"
)

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the ceiling. Values <= 0 disable limiting.
	RequestsPerSecond float64

	// Burst allows up to N requests before limiting kicks in (default 1).
	Burst int

	// AdaptiveSlowdown lowers the rate when the target signals throttling.
	AdaptiveSlowdown bool

	// SlowdownFactor multiplies the current rate on throttling (default 0.5).
	SlowdownFactor float64

	// MinRequestsPerSecond is the floor for adaptive slowdown (default 1).
	MinRequestsPerSecond float64

	// RecoveryAfter is the quiet period before the rate steps back up.
	RecoveryAfter time.Duration
}

// DefaultConfig returns a strict limiter at the default scan rate.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond:    defaults.RequestsPerSecond,
		Burst:                defaults.Burst,
		SlowdownFactor:       0.5,
		MinRequestsPerSecond: 1,
		RecoveryAfter:        duration.ThrottleRecovery,
	}
}

// Limiter gates request dispatch.
type Limiter struct {
	config  Config
	limiter *rate.Limiter

	mu            sync.Mutex
	current       float64
	lastThrottled time.Time

	waits     atomic.Int64
	waitNanos atomic.Int64
	throttled atomic.Int64
}

// New creates a limiter from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Burst <= 0 {
		c.Burst = defaults.Burst
	}
	if c.SlowdownFactor <= 0 || c.SlowdownFactor >= 1 {
		c.SlowdownFactor = 0.5
	}
	if c.MinRequestsPerSecond <= 0 {
		c.MinRequestsPerSecond = 1
	}
	if c.MinRequestsPerSecond > c.RequestsPerSecond && c.RequestsPerSecond > 0 {
		c.MinRequestsPerSecond = c.RequestsPerSecond
	}
	if c.RecoveryAfter <= 0 {
		c.RecoveryAfter = duration.ThrottleRecovery
	}

	limit := rate.Inf
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
	}

	return &Limiter{
		config:  c,
		limiter: rate.NewLimiter(limit, c.Burst),
		current: c.RequestsPerSecond,
	}
}

// NewPerSecond is shorthand for a strict limiter at rps.
func NewPerSecond(rps float64) *Limiter {
	return New(&Config{RequestsPerSecond: rps, Burst: 1})
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := l.limiter.Wait(ctx)
	l.waits.Add(1)
	l.waitNanos.Add(int64(time.Since(start)))
	return err
}

// Rate returns the current admission rate. Zero means unlimited.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Ceiling returns the configured maximum rate.
func (l *Limiter) Ceiling() float64 { return l.config.RequestsPerSecond }

// OnThrottle should be called when the target answers 429 or 503.
func (l *Limiter) OnThrottle() {
	l.throttled.Add(1)
	if !l.config.AdaptiveSlowdown || l.config.RequestsPerSecond <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastThrottled = time.Now()
	next := l.current * l.config.SlowdownFactor
	if next < l.config.MinRequestsPerSecond {
		next = l.config.MinRequestsPerSecond
	}
	if next != l.current {
		l.current = next
		l.limiter.SetLimit(rate.Limit(next))
	}
}

// OnSuccess should be called for responses that were not throttled.
// After RecoveryAfter without throttling the rate doubles back toward the
// ceiling; it never exceeds it.
func (l *Limiter) OnSuccess() {
	if !l.config.AdaptiveSlowdown || l.config.RequestsPerSecond <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.config.RequestsPerSecond {
		return
	}
	if time.Since(l.lastThrottled) < l.config.RecoveryAfter {
		return
	}
	next := l.current / l.config.SlowdownFactor
	if next > l.config.RequestsPerSecond {
		next = l.config.RequestsPerSecond
	}
	l.current = next
	l.lastThrottled = time.Now()
	l.limiter.SetLimit(rate.Limit(next))
}

// Stats is a point-in-time snapshot of limiter activity.
type Stats struct {
	Rate      float64       `json:"rate"`
	Ceiling   float64       `json:"ceiling"`
	Waits     int64         `json:"waits"`
	TotalWait time.Duration `json:"total_wait,format:nano"`
	Throttled int64         `json:"throttled"`
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() Stats {
	return Stats{
		Rate:      l.Rate(),
		Ceiling:   l.config.RequestsPerSecond,
		Waits:     l.waits.Load(),
		TotalWait: time.Duration(l.waitNanos.Load()),
		Throttled: l.throttled.Load(),
	}
}
