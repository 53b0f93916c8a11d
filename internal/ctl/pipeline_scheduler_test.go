// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/pipeline"
)

type nopDelegate struct{ now time.Time }

func (d *nopDelegate) Timestamp() time.Time { return d.now }
func (d *nopDelegate) ThreadID() uint64     { return 1 }
func (d *nopDelegate) ProcessSubframe(*audio.Frame, packet.StreamTimestamp, audio.ReadMode) error {
	return nil
}
func (d *nopDelegate) ProcessTask(*pipeline.Task) bool { return true }

func TestPipelineSchedulerRunsTaskProcessing(t *testing.T) {
	q := NewQueue(nil)
	defer q.Close()

	sched := NewPipelineScheduler(q)
	delegate := &nopDelegate{now: time.Unix(0, 0)}
	cfg := pipeline.DefaultConfig()
	cfg.EnablePreciseTaskScheduling = false
	loop := pipeline.New(sched, cfg, audio.SampleSpec{SampleRate: 48000, ChannelMask: audio.ChannelStereo}, pipeline.DirReadFrames, delegate, nil, time.Unix(0, 0))

	task := &pipeline.Task{}
	done := make(chan struct{})
	loop.Schedule(task, completerFunc(func(*pipeline.Task) { close(done) }))

	sched.ScheduleTaskProcessing(loop, time.Time{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never completed")
	}
	require.True(t, task.Success())
}

type completerFunc func(*pipeline.Task)

func (f completerFunc) PipelineTaskCompleted(task *pipeline.Task) { f(task) }

func TestPipelineSchedulerCancelIsNoopWithoutPending(t *testing.T) {
	q := NewQueue(nil)
	defer q.Close()

	sched := NewPipelineScheduler(q)
	delegate := &nopDelegate{now: time.Unix(0, 0)}
	loop := pipeline.New(sched, pipeline.DefaultConfig(), audio.SampleSpec{SampleRate: 48000, ChannelMask: audio.ChannelStereo}, pipeline.DirReadFrames, delegate, nil, time.Unix(0, 0))

	require.NotPanics(t, func() {
		sched.CancelTaskProcessing(loop)
	})
}
