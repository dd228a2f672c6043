// Package periodic runs a function on a fixed delay until cancelled.
package periodic

import (
	"context"
	"sync"
	"time"
)

// Task is a handle to a running periodic function.
type Task struct {
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Start runs fn every period until ctx is done or Cancel is called. The delay
// is measured from the end of one run to the start of the next, so a slow
// fn never overlaps itself. The first run happens one period after Start.
func Start(ctx context.Context, period time.Duration, fn func(ctx context.Context)) *Task {
	t := &Task{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go t.run(ctx, period, fn)
	return t
}

func (t *Task) run(ctx context.Context, period time.Duration, fn func(ctx context.Context)) {
	defer close(t.doneCh)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-timer.C:
		}

		// A cancel that raced with the timer wins.
		select {
		case <-t.stopCh:
			return
		default:
		}

		fn(ctx)
		timer.Reset(period)
	}
}

// Cancel stops the task and waits for an in-flight run to finish. Once
// Cancel returns, fn will not be called again. Cancel is idempotent and
// must not be called from inside fn.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

// Done is closed when the task has stopped.
func (t *Task) Done() <-chan struct{} {
	return t.doneCh
}
