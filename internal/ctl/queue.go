// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ctl

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

type op int

const (
	opSchedule op = iota
	opCancel
)

type pendingOp struct {
	task     *Task
	kind     op
	deadline time.Time
}

// sleepingHeap orders tasks by deadline, nearest first. Implements
// container/heap.Interface.
type sleepingHeap []*Task

func (h sleepingHeap) Len() int { return len(h) }
func (h sleepingHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h sleepingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *sleepingHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}
func (h *sleepingHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// Queue is a background-goroutine task queue for low-priority delayed
// work, used to back the pipeline loop's TaskScheduler and the network
// loop's own deferred bookkeeping. Scheduling and cancellation are
// lock-free from the caller's perspective (pushed onto an MPSC queue); the
// background goroutine applies them to the sorted sleeping-task set.
type Queue struct {
	ready *core.MpscQueue[pendingOp]
	wake  chan struct{}

	mu       sync.Mutex
	sleeping sleepingHeap

	tasksProcessed atomic.Uint64
	tasksFailed    atomic.Uint64

	group  *errgroup.Group
	cancel context.CancelFunc

	log rocutil.Logger
}

// NewQueue starts a Queue's background worker goroutine, supervised via
// golang.org/x/sync/errgroup so Close can wait for clean shutdown.
func NewQueue(log rocutil.Logger) *Queue {
	if log == nil {
		log = rocutil.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	q := &Queue{
		ready:  core.NewMpscQueue[pendingOp](),
		wake:   make(chan struct{}, 1),
		group:  group,
		cancel: cancel,
		log:    log,
	}

	group.Go(func() error {
		q.run(ctx)
		return nil
	})

	return q
}

// Close stops the background worker and waits for it to exit. Pending
// tasks are left in whatever state they were in; callers should cancel
// them first if they need to observe completion.
func (q *Queue) Close() {
	q.cancel()
	_ = q.group.Wait()
}

// Schedule enqueues task to run as soon as possible.
func (q *Queue) Schedule(task *Task, completer Completer) {
	q.scheduleAt(task, time.Time{}, completer)
}

// ScheduleAt enqueues task to run no earlier than deadline.
func (q *Queue) ScheduleAt(task *Task, deadline time.Time, completer Completer) {
	q.scheduleAt(task, deadline, completer)
}

func (q *Queue) scheduleAt(task *Task, deadline time.Time, completer Completer) {
	task.completer = completer
	task.state.Store(int32(stateReady))
	task.mu.Lock()
	task.deadline = deadline
	task.mu.Unlock()

	q.ready.PushBack(pendingOp{task: task, kind: opSchedule, deadline: deadline})
	q.nudge()
}

// ScheduleAndWait enqueues task and blocks until it completes, returning
// whether it succeeded.
func (q *Queue) ScheduleAndWait(ctx context.Context, task *Task) bool {
	task.ensureSemaphore()
	q.Schedule(task, nil)
	_ = task.sem.Acquire(ctx, 1)
	return task.Succeeded()
}

// Cancel requests task stop running. If it is currently sleeping or
// queued, it completes immediately with Cancelled() true; if it is
// mid-execution, cancellation is observed the next time the task runs.
func (q *Queue) Cancel(task *Task) {
	task.cancelled.Store(true)
	q.ready.PushBack(pendingOp{task: task, kind: opCancel})
	q.nudge()
}

func (q *Queue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.drainReady()
		q.runDue()

		wait := q.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}

func (q *Queue) drainReady() {
	for {
		pending, ok := q.ready.TryPopFront()
		if !ok {
			return
		}
		q.applyPending(pending)
	}
}

func (q *Queue) applyPending(p pendingOp) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch p.kind {
	case opCancel:
		if p.task.heapIndex < 0 {
			// Not sleeping: a queued task sees the cancelled flag when
			// runTask picks it up, and a completed task is left as it is.
			return
		}
		heap.Remove(&q.sleeping, p.task.heapIndex)
		p.task.state.Store(int32(stateCompleting))
		q.tasksProcessed.Add(1)
		q.tasksFailed.Add(1)
		p.task.finish(ResultFailure, true)
	case opSchedule:
		if p.deadline.IsZero() || !p.deadline.After(time.Now()) {
			q.runTask(p.task)
			return
		}
		p.task.state.Store(int32(stateSleeping))
		heap.Push(&q.sleeping, p.task)
	}
}

func (q *Queue) runDue() {
	now := time.Now()
	for {
		q.mu.Lock()
		if len(q.sleeping) == 0 || q.sleeping[0].deadline.After(now) {
			q.mu.Unlock()
			return
		}
		task := heap.Pop(&q.sleeping).(*Task)
		q.mu.Unlock()

		q.runTask(task)
	}
}

// runTask executes task possibly multiple times (ResultContinue loops
// in-place on the worker goroutine; ResultPause stops until rescheduled).
func (q *Queue) runTask(task *Task) {
	if task.cancelled.Load() {
		q.tasksProcessed.Add(1)
		q.tasksFailed.Add(1)
		task.finish(ResultFailure, true)
		return
	}

	task.state.Store(int32(stateProcessing))

	for {
		result := task.fn(task)

		switch result {
		case ResultContinue:
			if task.cancelled.Load() {
				q.tasksProcessed.Add(1)
				q.tasksFailed.Add(1)
				task.finish(ResultFailure, true)
				return
			}
			continue
		case ResultPause:
			task.state.Store(int32(stateCompleted))
			return
		default:
			q.tasksProcessed.Add(1)
			if result != ResultSuccess {
				q.tasksFailed.Add(1)
			}
			task.finish(result, true)
			return
		}
	}
}

// TasksProcessed and TasksFailed report cumulative task counts since the
// queue started, for internal/metrics.
func (q *Queue) TasksProcessed() uint64 { return q.tasksProcessed.Load() }
func (q *Queue) TasksFailed() uint64    { return q.tasksFailed.Load() }

func (q *Queue) nextWait() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.sleeping) == 0 {
		return time.Hour
	}
	d := time.Until(q.sleeping[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}
