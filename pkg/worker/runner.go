package worker

import (
	"errors"
	"sync/atomic"

	"github.com/breeswish/tikv/pkg/logging"
	"github.com/breeswish/tikv/pkg/readpool"
)

// runner dispatches each dequeued task onto the pool matching its
// priority, enforcing per-pool admission, and re-enters continuations
// through the scheduler so that every hop passes admission again.
type runner struct {
	pools        *readpool.ReadPool[WorkerContext]
	maxReadTasks *atomic.Int64
	scheduler    *Scheduler
	logger       *logging.Logger
}

func (r *runner) Run(t *Task) {
	pool := r.pools.Get(t.Priority())
	if pool.TaskCount() >= r.maxReadTasks.Load() {
		t.respond(nil, &Error{Code: CodePoolBusy, Detail: t.String()})
		return
	}
	err := pool.Execute(func(ctx *WorkerContext) {
		subtask := t.takeSubTask()
		subtask.AsyncWork(ctx, func(result SubTaskResult) {
			if result.finished {
				t.respond(result.value, result.err)
				return
			}
			t.setSubTask(result.next)
			scheduleTask(r.scheduler, t)
		})
	})
	if err != nil {
		if errors.Is(err, readpool.ErrQueueFull) {
			t.respond(nil, &Error{Code: CodePoolBusy, Detail: t.String()})
		} else {
			t.respond(nil, &Error{Code: CodeSchedulerStopped, Detail: t.String()})
		}
	}
}

// Shutdown stops the pools one by one; a stop failure is logged and
// swallowed so the remaining pools still stop.
func (r *runner) Shutdown() {
	for _, pool := range r.pools.All() {
		if err := pool.Stop(); err != nil {
			r.logger.Warnf("stopping pool %s failed: %v", pool.Name(), err)
		}
	}
}
