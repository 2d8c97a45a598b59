package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrder(t *testing.T) {
	tasks := []int{5, 4, 3, 2, 1, 0}
	results, err := Run(context.Background(), 3, tasks, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{25, 16, 9, 4, 1, 0}, results)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	const limit = 2
	var current, max int32
	tasks := make([]int, 10)
	_, err := Run(context.Background(), limit, tasks, func(ctx context.Context, _ int) (int, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return 0, nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, int(atomic.LoadInt32(&max)), limit)
}

func TestRunFailFastReturnsFirstError(t *testing.T) {
	errBoom := errors.New("boom")
	tasks := []int{0, 1, 2, 3}
	_, err := Run(context.Background(), 4, tasks, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errBoom
		}
		return n, nil
	})
	require.ErrorIs(t, err, errBoom)
}

func TestRunEmptyTasks(t *testing.T) {
	results, err := Run(context.Background(), 4, []int{}, func(ctx context.Context, n int) (int, error) {
		t.Fatal("should never be called")
		return 0, nil
	})
	require.NoError(t, err)
	require.Empty(t, results)
}
