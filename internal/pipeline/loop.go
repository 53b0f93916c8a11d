// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

// StatsReportInterval throttles the periodic debug log line Loop emits
// about its own task-processing statistics.
const StatsReportInterval = time.Minute

// Config controls how Loop interleaves frame and task processing.
type Config struct {
	// EnablePreciseTaskScheduling turns on the dedicated-time-slice
	// scheduling described in the package doc. The remaining fields only
	// take effect when this is true.
	EnablePreciseTaskScheduling bool

	// MinFrameLengthBetweenTasks is the minimum accumulated frame
	// duration before in-frame task processing is attempted. Zero allows
	// it after every frame.
	MinFrameLengthBetweenTasks time.Duration

	// MaxFrameLengthBetweenTasks is the largest subframe a frame is
	// split into to allow task processing between subframes. Zero
	// disables splitting.
	MaxFrameLengthBetweenTasks time.Duration

	// MaxInframeTaskProcessing bounds how long task processing may run
	// immediately after a (sub)frame, before deferring the rest.
	MaxInframeTaskProcessing time.Duration

	// TaskProcessingProhibitedInterval is a window centered on the next
	// expected frame deadline during which task processing is not
	// allowed to start, to avoid colliding with the next frame call.
	TaskProcessingProhibitedInterval time.Duration
}

// DefaultConfig returns the defaults used when a caller passes no
// explicit tuning.
func DefaultConfig() Config {
	return Config{
		EnablePreciseTaskScheduling:      true,
		MinFrameLengthBetweenTasks:       200 * time.Microsecond,
		MaxFrameLengthBetweenTasks:       time.Millisecond,
		MaxInframeTaskProcessing:         20 * time.Microsecond,
		TaskProcessingProhibitedInterval: 200 * time.Microsecond,
	}
}

// Direction says whether a Loop reads frames out of the pipeline (a
// receiver) or writes frames into it (a sender).
type Direction int

const (
	// DirReadFrames is a receiver-side pipeline.
	DirReadFrames Direction = iota
	// DirWriteFrames is a sender-side pipeline.
	DirWriteFrames
)

// Stats tallies how Loop has been spending its time, exposed for
// internal/metrics.
type Stats struct {
	TaskProcessedTotal   uint64
	TaskProcessedInPlace uint64
	TaskProcessedInFrame uint64
	TaskProcessedFailed  uint64
	Preemptions          uint64
	SchedulerCalls       uint64
	SchedulerCancels     uint64
}

// TaskScheduler is asked by Loop to arrange an out-of-band call to
// ProcessTasks, since Loop itself owns no thread.
type TaskScheduler interface {
	// ScheduleTaskProcessing asks the scheduler to invoke
	// loop.ProcessTasks around deadline (a hint, not a promise). A zero
	// deadline means "as soon as possible".
	ScheduleTaskProcessing(loop *Loop, deadline time.Time)
	// CancelTaskProcessing cancels a previously scheduled invocation, if
	// it hasn't run yet.
	CancelTaskProcessing(loop *Loop)
}

// Delegate supplies the concrete frame/task processing behavior and
// clock/thread-identity hooks a Loop needs.
type Delegate interface {
	// Timestamp returns the current monotonic time.
	Timestamp() time.Time
	// ThreadID identifies the calling goroutine's logical worker. Pass a
	// stable small integer per worker goroutine (e.g. a worker pool
	// slot), not goroutine IDs (Go doesn't expose those).
	ThreadID() uint64
	// ProcessSubframe reads or writes exactly subframeDuration of frame
	// starting wherever the implementation's internal cursor is.
	ProcessSubframe(frame *audio.Frame, subframeDuration packet.StreamTimestamp, mode audio.ReadMode) error
	// ProcessTask executes task's effect and reports success.
	ProcessTask(task *Task) bool
}

type procState int32

const (
	procNotScheduled procState = iota
	procScheduled
	procRunning
)

// Loop serializes frame and task processing for a pipeline that has no
// thread of its own. Both process through whichever goroutine calls into
// Loop; multiple goroutines may call concurrently.
type Loop struct {
	config    Config
	direction Direction
	spec      audio.SampleSpec
	delegate  Delegate
	scheduler TaskScheduler

	minSamplesBetweenTasks packet.StreamTimestamp
	maxSamplesBetweenTasks packet.StreamTimestamp
	noTaskProcHalfInterval time.Duration

	pipelineMutex  sync.Mutex
	schedulerMutex sync.Mutex

	taskQueue *core.MpscQueue[*Task]

	pendingTasks    atomic.Int32
	pendingFrames   atomic.Int32
	processingState atomic.Int32

	frameProcessingTid rocutil.Seqlock
	nextFrameDeadline  rocutil.Seqlock // nanoseconds since Loop epoch

	epoch time.Time

	subframeTasksDeadline time.Time
	samplesProcessed      packet.StreamTimestamp
	enoughSamplesForTasks bool

	subframe *audio.Frame

	rateLimiter *rocutil.RateLimiter
	statsMu     sync.Mutex
	stats       Stats

	log rocutil.Logger
}

// New creates a Loop. epoch is used as the zero point for the nanosecond
// seqlock fields; pass time.Now() unless deterministic tests need a fixed
// origin.
func New(scheduler TaskScheduler, config Config, spec audio.SampleSpec, direction Direction, delegate Delegate, log rocutil.Logger, epoch time.Time) *Loop {
	if log == nil {
		log = rocutil.NewNopLogger()
	}
	l := &Loop{
		config:                 config,
		direction:              direction,
		spec:                   spec,
		delegate:               delegate,
		scheduler:              scheduler,
		minSamplesBetweenTasks: packet.NsToStreamTimestamp(config.MinFrameLengthBetweenTasks, spec.SampleRate),
		maxSamplesBetweenTasks: packet.NsToStreamTimestamp(config.MaxFrameLengthBetweenTasks, spec.SampleRate),
		noTaskProcHalfInterval: config.TaskProcessingProhibitedInterval / 2,
		taskQueue:              core.NewMpscQueue[*Task](),
		epoch:                  epoch,
		rateLimiter:            rocutil.NewRateLimiter(StatsReportInterval),
		log:                    log,
	}
	return l
}

// NumPendingTasks reports how many tasks are queued or in-flight.
func (l *Loop) NumPendingTasks() int {
	return int(l.pendingTasks.Load())
}

// NumPendingFrames reports how many ProcessSubframesAndTasks calls are
// currently blocked on the pipeline mutex.
func (l *Loop) NumPendingFrames() int {
	return int(l.pendingFrames.Load())
}

// StatsSnapshot returns a copy of the current task processing statistics.
func (l *Loop) StatsSnapshot() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Loop) nowNs() int64 {
	return int64(l.delegate.Timestamp().Sub(l.epoch))
}

// Schedule enqueues task for asynchronous execution, notifying completer
// when it finishes (possibly before Schedule returns, if the task runs
// in-place).
func (l *Loop) Schedule(task *Task, completer TaskCompleter) {
	task.markScheduled()
	task.completer = completer
	l.scheduleAndMaybeProcess(task)
}

// ScheduleAndWait enqueues task and blocks the calling goroutine until it
// finishes, returning whether it succeeded.
func (l *Loop) ScheduleAndWait(ctx context.Context, task *Task) bool {
	task.markScheduled()
	task.completer = nil
	task.ensureSemaphore()

	processed := l.scheduleAndMaybeProcess(task)
	if !processed {
		task.wait(ctx)
	}
	return task.Success()
}

func (l *Loop) scheduleAndMaybeProcess(task *Task) bool {
	if l.pendingTasks.Add(1) != 1 {
		l.taskQueue.PushBack(task)
		return false
	}

	deadline, ok := l.nextFrameDeadline.TryLoad()
	if !ok {
		l.taskQueue.PushBack(task)
		return false
	}

	if !l.interframeTaskProcessingAllowed(deadline) {
		l.taskQueue.PushBack(task)
		if l.pendingFrames.Load() == 0 {
			l.scheduleAsyncTaskProcessing()
		}
		return false
	}

	if !l.pipelineMutex.TryLock() {
		l.taskQueue.PushBack(task)
		return false
	}

	l.processTask(task, false)
	l.pendingTasks.Add(-1)

	l.statsMu.Lock()
	l.stats.TaskProcessedTotal++
	l.stats.TaskProcessedInPlace++
	nPendingFrames := l.pendingFrames.Load()
	if nPendingFrames != 0 {
		l.stats.Preemptions++
	}
	l.statsMu.Unlock()

	l.pipelineMutex.Unlock()

	if nPendingFrames == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}

	return true
}

// ProcessTasks processes some of the enqueued tasks, if any, and is meant
// to be invoked by TaskScheduler in response to ScheduleTaskProcessing.
func (l *Loop) ProcessTasks() {
	needReschedule := l.maybeProcessTasks()

	l.processingState.Store(int32(procNotScheduled))

	if needReschedule {
		l.scheduleAsyncTaskProcessing()
	}
}

func (l *Loop) maybeProcessTasks() bool {
	deadline, ok := l.nextFrameDeadline.TryLoad()
	if !ok {
		return false
	}

	if !l.pipelineMutex.TryLock() {
		return false
	}

	l.processingState.Store(int32(procRunning))

	var nPendingFrames int32
	for {
		if !l.interframeTaskProcessingAllowed(deadline) {
			break
		}
		if nPendingFrames = l.pendingFrames.Load(); nPendingFrames != 0 {
			break
		}
		task, ok := l.taskQueue.TryPopFront()
		if !ok {
			break
		}
		l.processTask(task, true)
		l.pendingTasks.Add(-1)

		l.statsMu.Lock()
		l.stats.TaskProcessedTotal++
		l.statsMu.Unlock()
	}

	l.statsMu.Lock()
	if nPendingFrames != 0 {
		l.stats.Preemptions++
	}
	l.statsMu.Unlock()

	l.pipelineMutex.Unlock()

	return nPendingFrames == 0 && l.pendingTasks.Load() != 0
}

// ProcessSubframesAndTasks splits frame as needed and processes it
// alongside pending tasks, per Config.EnablePreciseTaskScheduling.
func (l *Loop) ProcessSubframesAndTasks(frame *audio.Frame, frameDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	if l.config.EnablePreciseTaskScheduling {
		return l.processPrecise(frame, frameDuration, mode)
	}
	return l.processSimple(frame, frameDuration, mode)
}

func (l *Loop) processSimple(frame *audio.Frame, frameDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	l.pendingFrames.Add(1)
	l.cancelAsyncTaskProcessing()

	l.pipelineMutex.Lock()
	err := l.delegate.ProcessSubframe(frame, frameDuration, mode)
	l.pipelineMutex.Unlock()

	if l.pendingFrames.Add(-1) == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}
	return err
}

func (l *Loop) processPrecise(frame *audio.Frame, frameDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	l.pendingFrames.Add(1)

	frameStartTime := l.nowNs()

	l.cancelAsyncTaskProcessing()

	l.pipelineMutex.Lock()

	var nextFrameDeadline int64
	var framePos packet.StreamTimestamp
	var err error

	for {
		firstIteration := framePos == 0

		err = l.processNextSubframe(frame, &framePos, frameDuration, mode)

		if firstIteration {
			nextFrameDeadline = l.updateNextFrameDeadline(frameStartTime, frameDuration)
		}

		if l.startSubframeTaskProcessing() {
			for {
				task, ok := l.taskQueue.TryPopFront()
				if !ok {
					break
				}
				l.processTask(task, true)
				l.pendingTasks.Add(-1)

				l.statsMu.Lock()
				l.stats.TaskProcessedTotal++
				l.stats.TaskProcessedInFrame++
				l.statsMu.Unlock()

				if !l.subframeTaskProcessingAllowed(nextFrameDeadline) {
					break
				}
			}
		}

		if err != nil || framePos == frameDuration {
			break
		}
	}

	l.reportStats()

	l.frameProcessingTid.ExclusiveStore(int64(l.delegate.ThreadID()))

	l.pipelineMutex.Unlock()

	if l.pendingFrames.Add(-1) == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}

	return err
}

func (l *Loop) processNextSubframe(frame *audio.Frame, framePos *packet.StreamTimestamp, frameDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	remaining := frameDuration - *framePos
	subframeDuration := remaining
	if l.maxSamplesBetweenTasks != 0 && remaining > l.maxSamplesBetweenTasks {
		subframeDuration = l.maxSamplesBetweenTasks
	}

	err := l.delegate.ProcessSubframe(frame, subframeDuration, mode)

	*framePos += subframeDuration

	l.subframeTasksDeadline = l.delegate.Timestamp().Add(l.config.MaxInframeTaskProcessing)

	if !l.enoughSamplesForTasks {
		l.samplesProcessed += subframeDuration
		if l.samplesProcessed >= l.minSamplesBetweenTasks {
			l.enoughSamplesForTasks = true
		}
	}

	return err
}

func (l *Loop) startSubframeTaskProcessing() bool {
	if l.pendingTasks.Load() == 0 {
		return false
	}
	if !l.enoughSamplesForTasks {
		return false
	}
	l.enoughSamplesForTasks = false
	l.samplesProcessed = 0
	return true
}

func (l *Loop) subframeTaskProcessingAllowed(nextFrameDeadlineNs int64) bool {
	now := l.delegate.Timestamp()
	if !now.Before(l.subframeTasksDeadline) {
		return false
	}
	nowNs := l.nowNs()
	if nowNs >= nextFrameDeadlineNs-int64(l.noTaskProcHalfInterval) {
		return false
	}
	return true
}

func (l *Loop) updateNextFrameDeadline(frameStartTimeNs int64, frameDuration packet.StreamTimestamp) int64 {
	deadline := frameStartTimeNs + int64(l.spec.SamplesPerChanToNs(uint64(frameDuration)))
	l.nextFrameDeadline.ExclusiveStore(deadline)
	return deadline
}

func (l *Loop) interframeTaskProcessingAllowed(nextFrameDeadlineNs int64) bool {
	if !l.config.EnablePreciseTaskScheduling {
		return true
	}

	frameTid, ok := l.frameProcessingTid.TryLoad()
	if ok {
		if frameTid == 0 {
			return true
		}
		if uint64(frameTid) == l.delegate.ThreadID() {
			return true
		}
	}

	now := l.nowNs()
	half := int64(l.noTaskProcHalfInterval)
	return now < nextFrameDeadlineNs-half || now >= nextFrameDeadlineNs+half
}

func (l *Loop) scheduleAsyncTaskProcessing() {
	nextFrameDeadline, ok := l.nextFrameDeadline.TryLoad()
	if !ok {
		return
	}

	if !l.schedulerMutex.TryLock() {
		return
	}

	if procState(l.processingState.Load()) == procNotScheduled {
		var deadline time.Time

		if l.config.EnablePreciseTaskScheduling {
			now := l.nowNs()
			half := int64(l.noTaskProcHalfInterval)

			switch {
			case now < nextFrameDeadline-half:
				deadline = time.Time{}
			case now < nextFrameDeadline+half:
				deadline = l.epoch.Add(time.Duration(nextFrameDeadline + half))
			default:
				deadline = time.Time{}
			}
		}

		l.scheduler.ScheduleTaskProcessing(l, deadline)

		l.statsMu.Lock()
		l.stats.SchedulerCalls++
		l.statsMu.Unlock()

		l.processingState.Store(int32(procScheduled))
	}

	l.schedulerMutex.Unlock()

	if l.pendingFrames.Load() != 0 {
		l.cancelAsyncTaskProcessing()
	}
}

func (l *Loop) cancelAsyncTaskProcessing() {
	if !l.schedulerMutex.TryLock() {
		return
	}

	if procState(l.processingState.Load()) == procScheduled {
		l.scheduler.CancelTaskProcessing(l)

		l.statsMu.Lock()
		l.stats.SchedulerCancels++
		l.statsMu.Unlock()

		l.processingState.Store(int32(procNotScheduled))
	}

	l.schedulerMutex.Unlock()
}

func (l *Loop) processTask(task *Task, notify bool) {
	ok := l.delegate.ProcessTask(task)
	task.finish(ok, notify)

	if !ok {
		l.statsMu.Lock()
		l.stats.TaskProcessedFailed++
		l.statsMu.Unlock()
	}
}

func (l *Loop) reportStats() {
	if !l.rateLimiter.WouldAllow() {
		return
	}
	if !l.schedulerMutex.TryLock() {
		return
	}
	if l.rateLimiter.Allow() {
		s := l.StatsSnapshot()
		var inPlaceRatio, inFrameRatio float64
		if s.TaskProcessedTotal != 0 {
			inPlaceRatio = float64(s.TaskProcessedInPlace) / float64(s.TaskProcessedTotal)
			inFrameRatio = float64(s.TaskProcessedInFrame) / float64(s.TaskProcessedTotal)
		}
		l.log.Debugw("pipeline loop stats",
			"tasks", s.TaskProcessedTotal,
			"in_place_ratio", inPlaceRatio,
			"in_frame_ratio", inFrameRatio,
			"preemptions", s.Preemptions,
			"scheduler_calls", s.SchedulerCalls,
			"scheduler_cancels", s.SchedulerCancels,
		)
	}
	l.schedulerMutex.Unlock()
}
