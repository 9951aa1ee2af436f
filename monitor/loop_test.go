package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoop_StopsAtIterationBoundary(t *testing.T) {
	stop := make(chan struct{})
	var seen []int
	n := NewLoop(time.Millisecond, 0).Run(context.Background(), stop, func(_ context.Context, iteration int) {
		seen = append(seen, iteration)
		if iteration == 3 {
			close(stop)
		}
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestLoop_StoppedBeforeStart(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	n := NewLoop(time.Hour, 0).Run(context.Background(), stop, func(context.Context, int) {
		t.Fatal("step must not run")
	})
	assert.Zero(t, n)
}

func TestLoop_ContextCancelInterruptsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		done <- NewLoop(time.Hour, 0).Run(ctx, nil, func(context.Context, int) { cancel() })
	}()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
}

func TestLoop_RunsTasks(t *testing.T) {
	stop := make(chan struct{})
	runs := 0
	task := Task{Name: "sync", Interval: 0, Run: func(context.Context) error {
		runs++
		return errors.New("ignored")
	}}
	NewLoop(time.Millisecond, time.Nanosecond, task).Run(context.Background(), stop, func(_ context.Context, iteration int) {
		if iteration == 2 {
			close(stop)
		}
	})
	assert.Equal(t, 2, runs)
}
