// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ctl

import (
	"sync"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/pipeline"
)

// PipelineScheduler adapts Queue to pipeline.TaskScheduler: it is the
// external scheduler a pipeline.Loop asks to call back into ProcessTasks
// when it has no thread of its own. One PipelineScheduler serves exactly
// one pipeline.Loop; construct a fresh one per loop.
type PipelineScheduler struct {
	queue *Queue

	mu      sync.Mutex
	pending *Task
}

// NewPipelineScheduler returns a PipelineScheduler backed by queue.
func NewPipelineScheduler(queue *Queue) *PipelineScheduler {
	return &PipelineScheduler{queue: queue}
}

// ScheduleTaskProcessing implements pipeline.TaskScheduler by enqueuing a
// control task on queue that, once due, calls loop.ProcessTasks.
func (s *PipelineScheduler) ScheduleTaskProcessing(loop *pipeline.Loop, deadline time.Time) {
	task := NewTask(func(*Task) Result {
		loop.ProcessTasks()
		return ResultSuccess
	})

	s.mu.Lock()
	s.pending = task
	s.mu.Unlock()

	s.queue.ScheduleAt(task, deadline, nil)
}

// CancelTaskProcessing implements pipeline.TaskScheduler by cancelling the
// most recently scheduled call, if it hasn't run yet.
func (s *PipelineScheduler) CancelTaskProcessing(loop *pipeline.Loop) {
	s.mu.Lock()
	task := s.pending
	s.pending = nil
	s.mu.Unlock()

	if task != nil && !task.Completed() {
		s.queue.Cancel(task)
	}
}
