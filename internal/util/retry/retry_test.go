package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExponentialBackoff_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	attempts := 0

	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_RecoversAfterTransientErrors(t *testing.T) {
	t.Parallel()
	attempts := 0

	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	t.Parallel()
	attempts := 0

	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return errors.New("connection refused")
	}, WithMaxRetries(2), WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithExponentialBackoff_FatalStopsImmediately(t *testing.T) {
	t.Parallel()
	attempts := 0
	authErr := errors.New("unable to authenticate")

	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return Fatal(authErr)
	}, WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, authErr)
	assert.True(t, IsFatal(err))
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithExponentialBackoff(ctx, func() error {
		return errors.New("still down")
	}, WithInitialDelay(time.Second))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextDelay_CapsAtMax(t *testing.T) {
	t.Parallel()
	cfg := &Config{Multiplier: 2, MaxDelay: 3 * time.Second}

	assert.Equal(t, 2*time.Second, nextDelay(time.Second, cfg))
	assert.Equal(t, 3*time.Second, nextDelay(2*time.Second, cfg))
}

func TestUntil_ReturnsWhenReady(t *testing.T) {
	t.Parallel()
	calls := 0

	err := Until(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntil_TimesOutWithLastError(t *testing.T) {
	t.Parallel()

	err := Until(context.Background(), 20*time.Millisecond, 5*time.Millisecond, func(context.Context) (bool, error) {
		return false, errors.New("container not running")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "container not running")
}

func TestUntil_FatalAbortsPolling(t *testing.T) {
	t.Parallel()
	calls := 0
	gone := errors.New("workload does not exist")

	err := Until(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return false, Fatal(gone)
	})

	require.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
}

func TestFatal_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Fatal(nil))
	assert.False(t, IsFatal(errors.New("plain")))
}
