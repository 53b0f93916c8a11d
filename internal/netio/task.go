// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// TaskState is a Task's position in its lifecycle.
type TaskState int32

const (
	// TaskInitialized is the state of a freshly constructed Task that
	// has not yet been given to Schedule.
	TaskInitialized TaskState = iota
	// TaskPending means the task is queued or running on the loop
	// goroutine.
	TaskPending
	// TaskClosingPort means the task is a remove-port operation waiting
	// for the port's async close to complete.
	TaskClosingPort
	// TaskFinishing means the task's handler has run and its success bit
	// is being recorded; the completer (if any) is invoked only after the
	// state reaches TaskFinished.
	TaskFinishing
	// TaskFinished is the terminal state; the task is no longer
	// reachable from the loop.
	TaskFinished
)

// TaskCompleter is notified when a Task finishes, on the network loop's
// goroutine.
type TaskCompleter interface {
	NetworkTaskCompleted(task *Task)
}

// handlerFunc is the bound method a Task runs on the loop goroutine. It
// returns whether the operation succeeded.
type handlerFunc func(*Loop, *Task) bool

// Task is a unit of work submitted to a Loop: add/remove a port, start a
// send/receive, resolve a hostname. One Task type carries a closure
// (handler) plus a free-form Payload instead of a subclass per operation.
type Task struct {
	handler handlerFunc
	// Payload carries operation-specific arguments/results (e.g. the
	// port being added, the resolved address). Set by the caller before
	// Schedule, read back after completion.
	Payload any

	state     atomic.Int32
	success   atomic.Bool
	completer TaskCompleter
	sem       *semaphore.Weighted
}

// newTask wraps handler in a Task ready to submit to Loop.Schedule.
func newTask(handler handlerFunc) *Task {
	t := &Task{handler: handler}
	t.state.Store(int32(TaskInitialized))
	return t
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

// Success reports whether the task's handler returned true. Only
// meaningful once State() == TaskFinished.
func (t *Task) Success() bool {
	return t.success.Load()
}

func (t *Task) ensureSemaphore() {
	if t.sem == nil {
		t.sem = semaphore.NewWeighted(1)
		_ = t.sem.Acquire(context.Background(), 1)
	}
}

func (t *Task) wait(ctx context.Context) {
	_ = t.sem.Acquire(ctx, 1)
}

// finish transitions the task to TaskFinished, sets its success bit, and
// notifies whichever of completer/semaphore the caller attached. Mirrors
// the semaphore-vs-completer exchange in pipeline.Task.finish and
// ctl.Task.finish: after either fires, the loop never touches the task.
func (t *Task) finish(l *Loop, ok bool) {
	t.state.Store(int32(TaskFinishing))
	t.success.Store(ok)
	t.state.Store(int32(TaskFinished))

	if t.completer != nil {
		t.completer.NetworkTaskCompleted(t)
	} else if t.sem != nil {
		t.sem.Release(1)
	}
}
