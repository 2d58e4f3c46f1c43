// Package retry runs an operation again when it fails with an error the
// caller classifies as transient. The scanner uses it for connection-level
// failures only: a timeout may be a legitimately slow endpoint and must not
// be repeated, or timing measurements would be skewed.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Once(isTransient), func() error {
//	    resp, err = send(ctx, req)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Strategy selects how the pause between attempts grows.
type Strategy int

const (
	// Constant waits InitDelay before every retry.
	Constant Strategy = iota
	// Exponential waits InitDelay * 2^attempt.
	Exponential
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts including the first. <= 0 runs fn once.
	InitDelay   time.Duration // Pause before the first retry. Zero retries immediately.
	MaxDelay    time.Duration // Upper bound on any pause. Zero means no bound.
	Strategy    Strategy

	// Retryable decides whether err deserves another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// Once returns a config allowing exactly one immediate retry for errors
// accepted by retryable.
func Once(retryable func(error) bool) Config {
	return Config{
		MaxAttempts: 2,
		Strategy:    Constant,
		Retryable:   retryable,
	}
}

// StopError marks an error as permanent.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further attempts.
func Stop(err error) error {
	return &StopError{Err: err}
}

type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The last error from fn is returned. If ctx ends
// between attempts, ctx.Err() is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return do(ctx, cfg, fn, timerSleeper{})
}

func do(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := s.sleep(ctx, Delay(cfg, attempt-1)); serr != nil {
				return serr
			}
		}

		err = fn()
		if err == nil {
			return nil
		}

		var stop *StopError
		if errors.As(err, &stop) {
			return stop.Err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
	}
	return err
}

// Delay computes the pause before retry number attempt (0-indexed).
func Delay(cfg Config, attempt int) time.Duration {
	var d time.Duration
	switch cfg.Strategy {
	case Exponential:
		d = cfg.InitDelay * time.Duration(math.Pow(2, float64(attempt)))
	default:
		d = cfg.InitDelay
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
