// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package netio implements the network event loop and its ports: a single
// goroutine multiplexing UDP ports via epoll and TCP connections via Go's
// runtime netpoller, fed by a lock-free task queue. TCP sockets are opened
// through net.Listen/net.Dial (and cmux for sub-protocol demuxing) rather
// than bare fds, since Go's netpoller already gives them non-blocking
// behavior for free.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

// StatsReportInterval throttles the loop's periodic debug stats line,
// matching every other loop in this tree.
const StatsReportInterval = time.Minute

// PortHandle is an opaque reference to a port owned by a Loop. Handles
// rather than pointers keep port ownership acyclic: tasks and callers hold
// an integer, the loop holds the only real reference.
type PortHandle int64

type portKind int

const (
	portKindUDP portKind = iota
	portKindTCPServer
	portKindTCPConnection
)

// port is the sealed-sum interface every concrete port type implements;
// the loop dispatches on the variant.
type port interface {
	kind() portKind
	// beginClose starts the port's async teardown; called on the loop
	// goroutine.
	beginClose()
	// closeComplete reports whether beginClose's teardown has finished
	// and the port may be dropped from the loop's table.
	closeComplete() bool
}

// Loop is the network event loop: it owns a set of ports and executes
// submitted Tasks, all on one goroutine.
type Loop struct {
	log rocutil.Logger

	poller *poller
	tasks  *core.MpscQueue[*Task]

	mu      sync.Mutex
	ports   map[PortHandle]port
	closing map[PortHandle]port
	nextID  atomic.Int64

	numPorts atomic.Int32

	tasksProcessed atomic.Uint64
	tasksFailed    atomic.Uint64

	group  *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}

	rateLimiter *rocutil.RateLimiter
}

// New starts a Loop's background goroutine.
func New(log rocutil.Logger) (*Loop, error) {
	if log == nil {
		log = rocutil.NewNopLogger()
	}
	p, err := newPoller()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	l := &Loop{
		log:         log,
		poller:      p,
		tasks:       core.NewMpscQueue[*Task](),
		ports:       make(map[PortHandle]port),
		closing:     make(map[PortHandle]port),
		group:       group,
		cancel:      cancel,
		done:        make(chan struct{}),
		rateLimiter: rocutil.NewRateLimiter(StatsReportInterval),
	}

	group.Go(func() error {
		l.run(ctx)
		return nil
	})

	return l, nil
}

// NumPorts reports the live count of open ports.
func (l *Loop) NumPorts() int {
	return int(l.numPorts.Load())
}

// Schedule submits a task to run on the loop goroutine, notifying
// completer (if non-nil) once it finishes.
func (l *Loop) Schedule(handler handlerFunc, completer TaskCompleter) *Task {
	t := newTask(handler)
	t.completer = completer
	t.state.Store(int32(TaskPending))
	l.tasks.PushBack(t)
	l.poller.wake()
	return t
}

// ScheduleAndWait submits a task and blocks the calling goroutine until
// it finishes, returning whether it succeeded.
func (l *Loop) ScheduleAndWait(ctx context.Context, handler handlerFunc) bool {
	t := newTask(handler)
	t.ensureSemaphore()
	t.state.Store(int32(TaskPending))
	l.tasks.PushBack(t)
	l.poller.wake()
	t.wait(ctx)
	return t.Success()
}

// Close stops the loop goroutine, then closes every remaining port.
func (l *Loop) Close() {
	l.cancel()
	_ = l.group.Wait()
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	for h, p := range l.ports {
		p.beginClose()
		l.closing[h] = p
		delete(l.ports, h)
	}
	for h, p := range l.closing {
		for i := 0; i < 100 && !p.closeComplete(); i++ {
			time.Sleep(time.Millisecond)
		}
		delete(l.closing, h)
		l.numPorts.Add(-1)
	}
	l.poller.close()
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.drainTasks()
		l.pollClosingPorts()
		l.reportStats()

		l.poller.wait(100) // ms; also wakes immediately on task submission
	}
}

func (l *Loop) drainTasks() {
	for {
		t, ok := l.tasks.TryPopFront()
		if !ok {
			return
		}
		ok2 := t.handler(l, t)

		l.tasksProcessed.Add(1)
		if !ok2 {
			l.tasksFailed.Add(1)
		}
		t.finish(l, ok2)
	}
}

// TasksProcessed and TasksFailed report cumulative task counts since the
// loop started, for internal/metrics.
func (l *Loop) TasksProcessed() uint64 { return l.tasksProcessed.Load() }
func (l *Loop) TasksFailed() uint64    { return l.tasksFailed.Load() }

// ClosingPorts reports the live count of ports in the async-close phase.
func (l *Loop) ClosingPorts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.closing)
}

func (l *Loop) pollClosingPorts() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for h, p := range l.closing {
		if p.closeComplete() {
			delete(l.closing, h)
			l.numPorts.Add(-1)
		}
	}
}

func (l *Loop) reportStats() {
	if !l.rateLimiter.Allow() {
		return
	}
	l.mu.Lock()
	open, closing := len(l.ports), len(l.closing)
	l.mu.Unlock()
	l.log.Debugw("network loop stats", "open_ports", open, "closing_ports", closing)
}

// registerPort adds p under a freshly allocated handle; must only be
// called from the loop goroutine (i.e. from within a Task handler).
func (l *Loop) registerPort(p port) PortHandle {
	h := PortHandle(l.nextID.Add(1))
	l.mu.Lock()
	l.ports[h] = p
	l.mu.Unlock()
	l.numPorts.Add(1)
	return h
}

// removePort moves the port referenced by h through "initiate async
// close" and into the closing set polled by pollClosingPorts. Teardown is
// two-phase: user-facing termination first, OS handle release second.
func (l *Loop) removePort(h PortHandle) error {
	l.mu.Lock()
	p, ok := l.ports[h]
	if ok {
		delete(l.ports, h)
		l.closing[h] = p
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("netio: no such port handle %d", h)
	}
	p.beginClose()
	return nil
}

// RemovePort asynchronously closes the port referenced by h.
func (l *Loop) RemovePort(ctx context.Context, h PortHandle) bool {
	return l.ScheduleAndWait(ctx, func(l *Loop, t *Task) bool {
		return l.removePort(h) == nil
	})
}

// ResolveHostname resolves host asynchronously on a helper goroutine and
// returns the result once the completion task has run on the loop
// goroutine, so resolution never blocks I/O dispatch.
func (l *Loop) ResolveHostname(ctx context.Context, host string) ([]net.IP, error) {
	type result struct {
		ips []net.IP
		err error
	}
	resCh := make(chan result, 1)

	l.group.Go(func() error {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		resCh <- result{ips: ips, err: err}
		return nil
	})

	var res result
	select {
	case res = <-resCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ok := l.ScheduleAndWait(ctx, func(l *Loop, t *Task) bool {
		t.Payload = res.ips
		return res.err == nil
	})
	if !ok {
		if res.err != nil {
			return nil, fmt.Errorf("netio: resolve %q: %w", host, res.err)
		}
		return nil, errors.New("netio: resolve: cancelled")
	}
	return res.ips, nil
}
