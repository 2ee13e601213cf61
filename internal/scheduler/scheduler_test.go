package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunsOnInterval(t *testing.T) {
	var calls int64
	task := &Task{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&calls, 1)
			return nil
		},
	}
	s := New()
	s.Register(task)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
	assert.GreaterOrEqual(t, task.stats().ExecCount, uint64(2))
}

func TestTaskNeverOverlapsItself(t *testing.T) {
	var concurrent, maxConcurrent int64
	task := &Task{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt64(&concurrent, 1)
			if n > atomic.LoadInt64(&maxConcurrent) {
				atomic.StoreInt64(&maxConcurrent, n)
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&concurrent, -1)
			return nil
		},
	}
	s := New()
	s.Register(task)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxConcurrent))
}
