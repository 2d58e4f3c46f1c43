package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records pauses without sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.delays = append(f.delays, d)
	return nil
}

var errTransient = errors.New("connection refused")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	err := do(context.Background(), Once(isTransient), func() error { return nil }, s)
	require.NoError(t, err)
	assert.Empty(t, s.delays)
}

func TestOnce_RetriesTransientExactlyOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}

	err := do(context.Background(), Once(isTransient), func() error {
		calls.Add(1)
		return errTransient
	}, s)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{0}, s.delays, "retry happens without backoff")
}

func TestOnce_SecondAttemptSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32

	err := do(context.Background(), Once(isTransient), func() error {
		if calls.Add(1) == 1 {
			return errTransient
		}
		return nil
	}, &fakeSleeper{})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOnce_NonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	timeout := errors.New("timeout")

	err := do(context.Background(), Once(isTransient), func() error {
		calls.Add(1)
		return timeout
	}, &fakeSleeper{})

	assert.ErrorIs(t, err, timeout)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_StopError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	perm := errors.New("permanent")

	err := do(context.Background(), Config{MaxAttempts: 5}, func() error {
		calls.Add(1)
		return Stop(perm)
	}, &fakeSleeper{})

	assert.Equal(t, perm, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ContextCancelledBetweenAttempts(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	err := do(ctx, Config{MaxAttempts: 3}, func() error {
		calls.Add(1)
		cancel()
		return errTransient
	}, &fakeSleeper{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	_ = do(context.Background(), Config{}, func() error {
		calls.Add(1)
		return errTransient
	}, &fakeSleeper{})
	assert.Equal(t, int32(1), calls.Load())
}

func TestDelay(t *testing.T) {
	t.Parallel()
	exp := Config{InitDelay: 100 * time.Millisecond, MaxDelay: time.Second, Strategy: Exponential}
	assert.Equal(t, 100*time.Millisecond, Delay(exp, 0))
	assert.Equal(t, 400*time.Millisecond, Delay(exp, 2))
	assert.Equal(t, time.Second, Delay(exp, 10))

	constant := Config{InitDelay: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, Delay(constant, 7))
}

func TestTimerSleeperZero(t *testing.T) {
	t.Parallel()
	require.NoError(t, timerSleeper{}.sleep(context.Background(), 0))
}
