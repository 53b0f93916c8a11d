// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package pipeline implements the precise task-scheduling pipeline loop:
// a threadless, caller-driven scheduler that serializes hard-deadline
// frame processing with best-effort control tasks, keeping task work out
// of the window around each predicted frame deadline.
package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type taskState int32

const (
	taskStateNew taskState = iota
	taskStateScheduled
	taskStateFinished
)

// TaskCompleter is notified when an asynchronously scheduled task
// finishes. Passed to Schedule; ScheduleAndWait has no completer and
// instead blocks the calling goroutine.
type TaskCompleter interface {
	PipelineTaskCompleted(task *Task)
}

// Task is the base type every pipeline request (add/remove a session,
// query stats, tune a parameter, ...) embeds. A Task must only be
// scheduled once.
type Task struct {
	state   atomic.Int32
	success atomic.Bool

	completer TaskCompleter
	sem       *semaphore.Weighted

	// Payload is set by the caller before scheduling and read back by
	// the Delegate's ProcessTask once the task runs.
	Payload any
}

// Success reports whether the finished task succeeded. Only meaningful
// after the task has finished (the caller was notified via TaskCompleter
// or ScheduleAndWait returned).
func (t *Task) Success() bool {
	return t.success.Load()
}

func (t *Task) markScheduled() {
	if taskState(t.state.Load()) != taskStateNew {
		panic("pipeline: attempt to schedule task more than once")
	}
	t.state.Store(int32(taskStateScheduled))
}

func (t *Task) finish(ok bool, notify bool) {
	t.success.Store(ok)
	t.state.Store(int32(taskStateFinished))

	if t.completer != nil {
		t.completer.PipelineTaskCompleted(t)
	} else if notify && t.sem != nil {
		t.sem.Release(1)
	}
}

func (t *Task) ensureSemaphore() {
	if t.sem == nil {
		t.sem = semaphore.NewWeighted(1)
		// acquired immediately so the first Release (by finish) is the
		// one that wakes the waiter in wait() below.
		_ = t.sem.Acquire(context.Background(), 1)
	}
}

func (t *Task) wait(ctx context.Context) {
	// second Acquire blocks until finish()'s Release(1) above runs.
	_ = t.sem.Acquire(ctx, 1)
}
