package worker

import (
	"errors"
	"fmt"
)

// Scheduler submission results. The task is not consumed on failure; the
// caller still owns it and must fire its callback.
var (
	ErrSchedulerFull    = errors.New("worker: scheduler queue full")
	ErrSchedulerStopped = errors.New("worker: scheduler stopped")
)

// Error codes delivered through task callbacks.
const (
	CodeSchedulerBusy    = "SCHEDULER_BUSY"
	CodeSchedulerStopped = "SCHEDULER_STOPPED"
	CodePoolBusy         = "POOL_BUSY"
)

// Error is a task rejection delivered through the callback. Detail renders
// the rejected task for diagnostics.
type Error struct {
	Code   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("worker: %s: %s", e.Code, e.Detail)
}

// HasCode reports whether err is a worker rejection with the given code.
func HasCode(err error, code string) bool {
	var we *Error
	return errors.As(err, &we) && we.Code == code
}
