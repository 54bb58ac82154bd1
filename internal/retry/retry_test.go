package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("still down")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestDoExponentialBackoff(t *testing.T) {
	t.Parallel()

	base := 20 * time.Millisecond
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: base}, func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// Waits of base and 2*base between the three attempts.
	assert.GreaterOrEqual(t, elapsed, 3*base)
}

func TestDoCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Config{}, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Config{MaxAttempts: 3, BaseDelay: time.Minute}, func(context.Context) error {
			calls++
			return errors.New("flaky")
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestPermanentNilIsNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
}

func TestPermanentWrapping(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("gone")
	err := Permanent(sentinel)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, sentinel.Error(), err.Error())
}

func TestConfigNormalized(t *testing.T) {
	t.Parallel()

	cfg := Config{}.Normalized()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.BaseDelay)

	cfg = Config{MaxAttempts: 7, BaseDelay: time.Second}.Normalized()
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseDelay)
}
