package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	b := Default()
	b.RequestsPerSecond = 0
	assert.ErrorIs(t, b.Validate(), ErrInvalidBudget)

	b = Default()
	b.MaxDepth = -1
	assert.ErrorIs(t, b.Validate(), ErrInvalidBudget)

	b = Default()
	b.Timeout = 0
	assert.ErrorIs(t, b.Validate(), ErrInvalidBudget)

	b = Default()
	b.MaxRequests = 0
	assert.NoError(t, b.Validate(), "zero cap means unlimited")
}

func TestCounterNeverExceedsCap(t *testing.T) {
	const limit = 100
	c := NewCounter(limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if c.Acquire() == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, granted)
	assert.Equal(t, int64(limit), c.Issued())
	assert.Equal(t, int64(0), c.Remaining())
	assert.True(t, c.Exhausted())
}

func TestCounterUnlimited(t *testing.T) {
	c := NewCounter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Acquire())
	}
	assert.Equal(t, int64(1000), c.Issued())
	assert.Equal(t, int64(-1), c.Remaining())
	assert.False(t, c.Exhausted())
}

func TestCounterExhaustedOnlyAfterRefusal(t *testing.T) {
	c := NewCounter(2)
	require.NoError(t, c.Acquire())
	require.NoError(t, c.Acquire())
	assert.False(t, c.Exhausted(), "reaching the cap exactly is not truncation")
	assert.ErrorIs(t, c.Acquire(), ErrExhausted)
	assert.True(t, c.Exhausted())
}
