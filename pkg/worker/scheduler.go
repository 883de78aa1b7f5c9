package worker

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Runner consumes tasks dequeued from the scheduler mailbox.
type Runner interface {
	Run(t *Task)
	Shutdown()
}

// Scheduler is the cloneable, lock-free submission handle of a Worker.
type Scheduler struct {
	ch      chan *Task
	stopped *atomic.Bool
}

// Schedule enqueues a task. It fails fast with ErrSchedulerFull when the
// bounded mailbox is at capacity and with ErrSchedulerStopped during
// shutdown; in both cases the caller keeps the task.
func (s *Scheduler) Schedule(t *Task) error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	select {
	case s.ch <- t:
		return nil
	default:
		return ErrSchedulerFull
	}
}

// scheduleTask submits t and fires its callback on rejection, so that
// every path out of the scheduler honors the one-shot callback contract.
func scheduleTask(s *Scheduler, t *Task) {
	err := s.Schedule(t)
	switch {
	case err == nil:
	case errors.Is(err, ErrSchedulerFull):
		t.respond(nil, &Error{Code: CodeSchedulerBusy, Detail: t.String()})
	default:
		t.respond(nil, &Error{Code: CodeSchedulerStopped, Detail: t.String()})
	}
}

// Worker owns the scheduler mailbox and the single goroutine consuming it.
type Worker struct {
	name      string
	scheduler *Scheduler
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewWorker builds a worker with a mailbox of the given capacity.
func NewWorker(name string, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &Worker{
		name: name,
		scheduler: &Scheduler{
			ch:      make(chan *Task, queueSize),
			stopped: &atomic.Bool{},
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Scheduler returns the submission handle. The handle stays valid across
// Start and Stop; submissions after Stop are rejected.
func (w *Worker) Scheduler() *Scheduler {
	return w.scheduler
}

// Start spawns the consumer loop.
func (w *Worker) Start(runner Runner) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("worker: already started")
	}
	if w.stopped {
		return errors.New("worker: already stopped")
	}
	w.started = true
	go w.loop(runner)
	return nil
}

func (w *Worker) loop(runner Runner) {
	defer close(w.doneCh)
	for {
		select {
		case t := <-w.scheduler.ch:
			runner.Run(t)
		case <-w.stopCh:
			// Drain tasks accepted before the stop flag went up; they run
			// normally so their callbacks fire.
			for {
				select {
				case t := <-w.scheduler.ch:
					runner.Run(t)
				default:
					runner.Shutdown()
					go w.rejectStragglers()
					return
				}
			}
		}
	}
}

// rejectStragglers keeps consuming the mailbox after shutdown, firing the
// stopped error for any submission that raced the stop flag. The mailbox
// is never closed, so every task that made it in still reaches its
// callback.
func (w *Worker) rejectStragglers() {
	for t := range w.scheduler.ch {
		t.respond(nil, &Error{Code: CodeSchedulerStopped, Detail: t.String()})
	}
}

// Stop rejects new submissions, drains the mailbox through the runner, and
// waits for the consumer loop to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.scheduler.stopped.Store(true)
	close(w.stopCh)
	<-w.doneCh
}
