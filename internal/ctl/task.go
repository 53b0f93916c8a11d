// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package ctl implements the control task queue: a timer-driven,
// background-goroutine queue for low-priority delayed work scheduled by
// the network and pipeline loops.
package ctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"
)

// Result is what a task function returns to tell the queue what to do
// next.
type Result int

const (
	// ResultSuccess means the task completed successfully and won't run
	// again.
	ResultSuccess Result = iota
	// ResultFailure means the task failed and won't run again.
	ResultFailure
	// ResultContinue means the task wants to run again as soon as
	// possible.
	ResultContinue
	// ResultPause means the task wants to stop running until it is
	// scheduled again.
	ResultPause
)

// Func is the work a Task performs. It receives the Task so it can read
// caller-supplied state off Task.Payload.
type Func func(*Task) Result

// Completer is notified when a task completes, fails, or is cancelled.
type Completer interface {
	ControlTaskCompleted(task *Task)
}

type taskState int32

const (
	stateReady taskState = iota
	stateSleeping
	stateCancelling
	stateProcessing
	stateCompleting
	stateCompleted
)

// Task is a unit of delayed or immediate background work, carrying a
// plain closure plus the lifecycle state the queue's worker drives it
// through.
type Task struct {
	ID xid.ID

	fn        Func
	completer Completer

	// Payload carries caller-defined task state; set before scheduling,
	// read back inside fn.
	Payload any

	state     atomic.Int32
	succeeded atomic.Bool
	cancelled atomic.Bool

	mu       sync.Mutex
	deadline time.Time // zero value means "run ASAP"

	sem *semaphore.Weighted

	// heapIndex is maintained by the sleeping-tasks heap in queue.go.
	heapIndex int
}

// NewTask creates a task that runs fn when scheduled.
func NewTask(fn Func) *Task {
	t := &Task{ID: xid.New(), fn: fn, heapIndex: -1}
	t.state.Store(int32(stateCompleted))
	return t
}

// Completed reports whether the task is not scheduled: it has finished
// running (successfully, with failure, or via cancellation), its last run
// returned ResultPause, or it has never been scheduled.
func (t *Task) Completed() bool {
	return taskState(t.state.Load()) == stateCompleted
}

// Succeeded reports whether the task's last run returned ResultSuccess.
func (t *Task) Succeeded() bool {
	return t.succeeded.Load()
}

// Cancelled reports whether the task was cancelled before it could finish.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

func (t *Task) ensureSemaphore() {
	if t.sem == nil {
		t.sem = semaphore.NewWeighted(1)
		_ = t.sem.Acquire(context.Background(), 1)
	}
}

func (t *Task) finish(result Result, notify bool) {
	t.succeeded.Store(result == ResultSuccess)
	t.state.Store(int32(stateCompleted))

	if t.completer != nil {
		t.completer.ControlTaskCompleted(t)
	} else if notify && t.sem != nil {
		t.sem.Release(1)
	}
}
