// Package worker implements the priority-tiered request worker: tasks
// wrap a chain of subtasks and a one-shot callback; a mailbox scheduler
// dispatches each hop onto the priority pool allocator, re-admitting
// continuations so that a long chain cannot monopolize a pool thread.
package worker

import (
	"fmt"
	"sync"

	"github.com/breeswish/tikv/pkg/coprocessor"
	"github.com/breeswish/tikv/pkg/readpool"
	"github.com/breeswish/tikv/pkg/storage"
)

// CommandPri is the request priority as carried on the wire.
type CommandPri int

const (
	CommandPriNormal CommandPri = iota
	CommandPriLow
	CommandPriHigh
)

// MapCommandPriority maps a wire priority to a read pool. ReadCritical is
// internal only and never produced here.
func MapCommandPriority(pri CommandPri) readpool.Priority {
	switch pri {
	case CommandPriHigh:
		return readpool.ReadHigh
	case CommandPriLow:
		return readpool.ReadLow
	default:
		return readpool.ReadNormal
	}
}

// Value is a task's terminal result.
type Value interface {
	isValue()
}

// StorageValue is the result of a point get: the value and whether the key
// existed at the read timestamp.
type StorageValue struct {
	Data  []byte
	Found bool
}

func (StorageValue) isValue() {}

// CoprocessorValue is the result of a coprocessor request: one response
// frame, or several for a streaming request.
type CoprocessorValue struct {
	Responses []*coprocessor.Response
}

func (CoprocessorValue) isValue() {}

// Callback is the one-shot sink for a task's terminal result.
type Callback func(v Value, err error)

// WorkerContext is per pool worker: a shared engine handle plus the
// pool-wide limits. It is owned by its worker goroutine and never shared.
type WorkerContext struct {
	Engine          storage.Engine
	BatchRowLimit   int
	ChunksPerStream int
	RecursionLimit  int
}

// SubTaskResult is a subtask's verdict: either the next subtask of the
// chain, or a terminal value or error.
type SubTaskResult struct {
	next     SubTask
	value    Value
	err      error
	finished bool
}

// ContinueWith hands the chain to the next subtask.
func ContinueWith(next SubTask) SubTaskResult {
	return SubTaskResult{next: next}
}

// FinishWith ends the chain with a value.
func FinishWith(v Value) SubTaskResult {
	return SubTaskResult{value: v, finished: true}
}

// FinishWithErr ends the chain with an error.
func FinishWithErr(err error) SubTaskResult {
	return SubTaskResult{err: err, finished: true}
}

// SubTaskSink receives a subtask's verdict. The sink is only valid during
// the AsyncWork call that received it.
type SubTaskSink func(SubTaskResult)

// SubTask is one hop of a task. AsyncWork runs on a pool worker and must
// report exactly one verdict through the sink; the worker context is valid
// only for the duration of the call, and the next hop may run on a
// different worker.
type SubTask interface {
	AsyncWork(ctx *WorkerContext, on SubTaskSink)
	fmt.Stringer
}

// Task is a request travelling through the scheduler: the current subtask,
// its priority, and the callback owed exactly one invocation on every
// terminal path.
type Task struct {
	priority readpool.Priority
	subtask  SubTask
	callback Callback
	once     sync.Once
}

// NewTask wraps a first subtask.
func NewTask(subtask SubTask, priority readpool.Priority, callback Callback) *Task {
	return &Task{priority: priority, subtask: subtask, callback: callback}
}

// Priority returns the task's pool priority.
func (t *Task) Priority() readpool.Priority { return t.priority }

// takeSubTask moves the current subtask out of the task.
func (t *Task) takeSubTask() SubTask {
	st := t.subtask
	t.subtask = nil
	return st
}

// setSubTask stores the continuation for the next hop.
func (t *Task) setSubTask(st SubTask) {
	t.subtask = st
}

// respond fires the callback. Terminal paths race only in shutdown corner
// cases; the first verdict wins and the rest are dropped.
func (t *Task) respond(v Value, err error) {
	t.once.Do(func() {
		t.callback(v, err)
	})
}

// String renders the task for rejection details.
func (t *Task) String() string {
	if t.subtask != nil {
		return fmt.Sprintf("task [%s] %s", t.priority, t.subtask)
	}
	return fmt.Sprintf("task [%s]", t.priority)
}
