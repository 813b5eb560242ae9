package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel_Success(t *testing.T) {
	t.Parallel()
	var count atomic.Int32
	inc := func(context.Context) error { count.Add(1); return nil }

	err := RunParallel(context.Background(), []Task{
		{Name: "tcp", Func: inc},
		{Name: "icmp", Func: inc},
		{Name: "dns", Func: inc},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), count.Load())
}

func TestRunParallel_Empty(t *testing.T) {
	t.Parallel()

	assert.NoError(t, RunParallel(context.Background(), nil))
}

func TestRunParallel_ErrorWaitsForAll(t *testing.T) {
	t.Parallel()
	var finished atomic.Bool
	boom := errors.New("boom")

	err := RunParallel(context.Background(), []Task{
		{Name: "fails", Func: func(context.Context) error { return boom }},
		{Name: "slow", Func: func(context.Context) error {
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return nil
		}},
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fails: boom")
	assert.True(t, finished.Load())
}
