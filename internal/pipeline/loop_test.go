// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

type fakeScheduler struct {
	scheduled int
	canceled  int
}

func (s *fakeScheduler) ScheduleTaskProcessing(loop *Loop, deadline time.Time) {
	s.scheduled++
	go loop.ProcessTasks()
}

func (s *fakeScheduler) CancelTaskProcessing(loop *Loop) {
	s.canceled++
}

type fakeDelegate struct {
	now        time.Time
	tid        uint64
	taskFn     func(*Task) bool
	subframeFn func(*audio.Frame, packet.StreamTimestamp, audio.ReadMode) error
}

func (d *fakeDelegate) Timestamp() time.Time { return d.now }
func (d *fakeDelegate) ThreadID() uint64     { return d.tid }

func (d *fakeDelegate) ProcessSubframe(frame *audio.Frame, dur packet.StreamTimestamp, mode audio.ReadMode) error {
	if d.subframeFn != nil {
		return d.subframeFn(frame, dur, mode)
	}
	return nil
}

func (d *fakeDelegate) ProcessTask(task *Task) bool {
	if d.taskFn != nil {
		return d.taskFn(task)
	}
	return true
}

func newTestLoop(delegate *fakeDelegate, sched *fakeScheduler) *Loop {
	cfg := DefaultConfig()
	spec := audio.SampleSpec{SampleRate: 48000, ChannelMask: audio.ChannelStereo}
	return New(sched, cfg, spec, DirReadFrames, delegate, nil, time.Unix(0, 0))
}

func TestScheduleAndWaitRunsInPlaceWhenNoFrameYet(t *testing.T) {
	delegate := &fakeDelegate{now: time.Unix(0, 0)}
	sched := &fakeScheduler{}
	loop := newTestLoop(delegate, sched)

	task := &Task{}
	ok := loop.ScheduleAndWait(context.Background(), task)

	assert.True(t, ok)
	assert.True(t, task.Success())
	assert.Equal(t, 0, loop.NumPendingTasks())
}

func TestScheduleAndWaitFailureIsReported(t *testing.T) {
	delegate := &fakeDelegate{now: time.Unix(0, 0), taskFn: func(*Task) bool { return false }}
	sched := &fakeScheduler{}
	loop := newTestLoop(delegate, sched)

	task := &Task{}
	ok := loop.ScheduleAndWait(context.Background(), task)

	assert.False(t, ok)
	assert.False(t, task.Success())
}

func TestDoubleScheduleAttemptPanics(t *testing.T) {
	delegate := &fakeDelegate{now: time.Unix(0, 0)}
	sched := &fakeScheduler{}
	loop := newTestLoop(delegate, sched)

	task := &Task{}
	require.True(t, loop.ScheduleAndWait(context.Background(), task))

	assert.Panics(t, func() {
		loop.ScheduleAndWait(context.Background(), task)
	})
}

func TestProcessSubframesAndTasksWithEmptyQueueProcessesNoTasks(t *testing.T) {
	delegate := &fakeDelegate{now: time.Unix(0, 0)}
	sched := &fakeScheduler{}
	loop := newTestLoop(delegate, sched)

	frame := &audio.Frame{}
	err := loop.ProcessSubframesAndTasks(frame, packet.StreamTimestamp(960), audio.ModeHard)
	require.NoError(t, err)

	stats := loop.StatsSnapshot()
	assert.Equal(t, uint64(0), stats.TaskProcessedTotal)
}

func TestConcurrentSchedulesAreAllProcessed(t *testing.T) {
	delegate := &fakeDelegate{now: time.Unix(0, 0)}
	sched := &fakeScheduler{}
	loop := newTestLoop(delegate, sched)

	const n = 50
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			task := &Task{}
			results <- loop.ScheduleAndWait(context.Background(), task)
		}()
	}

	for i := 0; i < n; i++ {
		require.True(t, <-results)
	}
	assert.Equal(t, 0, loop.NumPendingTasks())
}
