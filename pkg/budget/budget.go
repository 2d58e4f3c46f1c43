// Package budget holds the per-scan resource limits and the shared request
// counter that enforces the total request cap.
package budget

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/duration"
)

// ErrExhausted is returned once the total request cap has been reached.
// It signals truncation, not failure.
var ErrExhausted = errors.New("budget: request cap reached")

// ErrInvalidBudget is returned by Validate.
var ErrInvalidBudget = errors.New("budget: invalid")

// Budget is read-only scan configuration shared by every component.
type Budget struct {
	// RequestsPerSecond is the global admission ceiling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// Timeout is applied to every request.
	Timeout time.Duration `json:"timeout,format:nano" yaml:"timeout"`

	// MaxDepth bounds discovery recursion. Zero disables recursion.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxRequests caps the total requests of a scan. Zero means unlimited.
	MaxRequests int64 `json:"max_requests" yaml:"max_requests"`
}

// Default returns the default budget.
func Default() Budget {
	return Budget{
		RequestsPerSecond: defaults.RequestsPerSecond,
		Timeout:           duration.RequestTimeout,
		MaxDepth:          defaults.MaxDepth,
		MaxRequests:       defaults.MaxRequests,
	}
}

// Validate checks that every field is usable.
func (b Budget) Validate() error {
	if b.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests_per_second must be > 0, got %v", ErrInvalidBudget, b.RequestsPerSecond)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0, got %v", ErrInvalidBudget, b.Timeout)
	}
	if b.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0, got %d", ErrInvalidBudget, b.MaxDepth)
	}
	if b.MaxRequests < 0 {
		return fmt.Errorf("%w: max_requests must be >= 0, got %d", ErrInvalidBudget, b.MaxRequests)
	}
	return nil
}

// Counter is the shared request counter of one scan session.
// Acquire is an atomic check-then-increment; the cap can never be exceeded
// regardless of how many goroutines race on it.
type Counter struct {
	limit     int64
	issued    atomic.Int64
	exhausted atomic.Bool
}

// NewCounter returns a counter enforcing limit. A limit <= 0 is unlimited.
func NewCounter(limit int64) *Counter {
	return &Counter{limit: limit}
}

// Acquire reserves one request slot. It returns ErrExhausted when the cap is
// reached and records that truncation happened.
func (c *Counter) Acquire() error {
	if c.limit <= 0 {
		c.issued.Add(1)
		return nil
	}
	for {
		n := c.issued.Load()
		if n >= c.limit {
			c.exhausted.Store(true)
			return ErrExhausted
		}
		if c.issued.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Issued returns the number of slots handed out.
func (c *Counter) Issued() int64 { return c.issued.Load() }

// Limit returns the configured cap (0 = unlimited).
func (c *Counter) Limit() int64 { return c.limit }

// Remaining returns the slots left, or -1 when unlimited.
func (c *Counter) Remaining() int64 {
	if c.limit <= 0 {
		return -1
	}
	r := c.limit - c.issued.Load()
	if r < 0 {
		return 0
	}
	return r
}

// Exhausted reports whether an Acquire was ever refused.
func (c *Counter) Exhausted() bool { return c.exhausted.Load() }
