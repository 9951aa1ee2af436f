package monitor

import (
	"context"
	"time"

	"crossbot/logs"
)

// Task is housekeeping run between iterations once its interval has elapsed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Loop drives a step function with a fixed sleep between iterations. Stop requests are honored
// at iteration boundaries and during the sleep, never in the middle of a step.
type Loop struct {
	interval  time.Duration
	heartbeat time.Duration
	tasks     []Task
	now       func() time.Time
}

func NewLoop(interval, heartbeat time.Duration, tasks ...Task) *Loop {
	return &Loop{interval: interval, heartbeat: heartbeat, tasks: tasks, now: time.Now}
}

// Run blocks until stop is closed or ctx is done and returns the number of completed iterations.
func (l *Loop) Run(ctx context.Context, stop <-chan struct{}, step func(ctx context.Context, iteration int)) int {
	lastHeartbeat := l.now()
	lastTaskRun := make([]time.Time, len(l.tasks))
	for i := range lastTaskRun {
		lastTaskRun[i] = lastHeartbeat
	}

	completed := 0
	for {
		if stopRequested(ctx, stop) {
			logs.Info("[Monitor] Received stop signal, exiting.")
			return completed
		}

		step(ctx, completed+1)
		completed++

		now := l.now()
		if l.heartbeat > 0 && now.Sub(lastHeartbeat) >= l.heartbeat {
			logs.Infof("[Heartbeat] Trading loop still running, iteration %d", completed)
			lastHeartbeat = now
		}
		for i, task := range l.tasks {
			if now.Sub(lastTaskRun[i]) < task.Interval {
				continue
			}
			if err := task.Run(ctx); err != nil {
				logs.Errorf("[Monitor] %s failed: %v", task.Name, err)
			}
			lastTaskRun[i] = now
		}

		timer := time.NewTimer(l.interval)
		select {
		case <-stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func stopRequested(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
