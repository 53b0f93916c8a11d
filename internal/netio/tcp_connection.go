// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocerr"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

// ConnState is a TCP connection's FSM state. setState records whatever
// state it is given and does not check that the transition is legal; the
// only misuse caught by a panic is a second AsyncTerminate call.
type ConnState int32

const (
	ConnClosed ConnState = iota
	ConnOpening
	ConnOpened
	ConnConnecting
	ConnRefused
	ConnEstablished
	ConnBroken
	ConnTerminating
	ConnTerminated
	ConnClosing
)

// TermMode selects how AsyncTerminate tears down the socket: gracefully
// (FIN) or abruptly (RST).
type TermMode int

const (
	TermNormal TermMode = iota
	TermFailure
)

type ioStatus int32

const (
	ioNotAvailable ioStatus = iota
	ioAvailable
	ioInProgress
)

// ConnHandler is the capability interface a connection's owner implements
// to learn about its lifecycle and readiness edges.
type ConnHandler interface {
	OnRefused(c *TCPConnectionPort)
	OnEstablished(c *TCPConnectionPort)
	OnWritable(c *TCPConnectionPort)
	OnReadable(c *TCPConnectionPort)
	OnTerminated(c *TCPConnectionPort)
	OnCloseCompleted(c *TCPConnectionPort)
}

// TCPConnectionPort is a single TCP connection's state machine and I/O
// surface. TryRead/TryWrite use net.Conn deadlines instead of raw
// non-blocking recv()/send(), and readiness edges are detected via
// (*net.TCPConn).SyscallConn()'s raw-conn Read/Write hooks rather than
// registering the fd with this package's own epoll poller, since Go's
// runtime netpoller already owns the fd for every net.Conn and a second
// epoll registration would race it.
type TCPConnectionPort struct {
	loop    *Loop
	handle  PortHandle
	log     rocutil.Logger
	handler ConnHandler

	// conn is the stream surface reads and writes go through; raw is the
	// underlying socket used for shutdown, linger, and readiness waits.
	// They differ for server-accepted connections, where the demuxer wraps
	// the socket with a sniffed-bytes replay buffer.
	conn       net.Conn
	raw        *net.TCPConn
	localAddr  *net.TCPAddr
	remoteAddr *net.TCPAddr

	state ConnState
	stMu  sync.Mutex

	wasEstablished atomic.Bool
	wasFailed      atomic.Bool
	terminateOnce  atomic.Bool
	closeOnce      atomic.Bool

	ioMu sync.Mutex

	readStatus  atomic.Int32
	writeStatus atomic.Int32
	readRearm   chan struct{}
	writeRearm  chan struct{}
	stop        chan struct{}
	watchersWG  sync.WaitGroup

	closeDone atomic.Bool
}

// DialTCP opens a client connection to remoteAddr. The connect runs on
// the calling goroutine, not the loop's, and DialTCP blocks until it
// succeeds or fails. On refusal handler.OnRefused is called and DialTCP
// returns rocerr.ErrFailure without registering a port; on success the
// port is registered with loop and established before DialTCP returns.
func DialTCP(ctx context.Context, loop *Loop, remoteAddr *net.TCPAddr, handler ConnHandler, log rocutil.Logger) (*TCPConnectionPort, error) {
	if log == nil {
		log = rocutil.NewNopLogger()
	}

	c := &TCPConnectionPort{
		loop:       loop,
		log:        log,
		handler:    handler,
		remoteAddr: remoteAddr,
		state:      ConnOpening,
		readRearm:  make(chan struct{}, 1),
		writeRearm: make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	c.setState(ConnConnecting)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", remoteAddr.String())
	if err != nil {
		c.setState(ConnRefused)
		c.wasFailed.Store(true)
		if handler != nil {
			handler.OnRefused(c)
		}
		return nil, rocerr.ErrFailure
	}

	tcpConn := conn.(*net.TCPConn)
	c.conn = tcpConn
	c.raw = tcpConn
	c.localAddr = tcpConn.LocalAddr().(*net.TCPAddr)

	loop.ScheduleAndWait(ctx, func(l *Loop, t *Task) bool {
		c.handle = l.registerPort(c)
		return true
	})

	c.onEstablished()
	return c, nil
}

// newAcceptedTCP wraps an already-accepted connection (the server-side
// handshake is complete the moment Accept returns). stream may be the raw
// socket itself or a demuxer wrapper replaying sniffed bytes; in the
// latter case the wrapper may hold buffered data the socket will never
// signal readable for again, so an initial readable edge is delivered
// immediately.
func newAcceptedTCP(loop *Loop, stream net.Conn, raw *net.TCPConn, handler ConnHandler, log rocutil.Logger) *TCPConnectionPort {
	if log == nil {
		log = rocutil.NewNopLogger()
	}
	c := &TCPConnectionPort{
		loop:       loop,
		log:        log,
		handler:    handler,
		conn:       stream,
		raw:        raw,
		localAddr:  raw.LocalAddr().(*net.TCPAddr),
		remoteAddr: raw.RemoteAddr().(*net.TCPAddr),
		state:      ConnOpened,
		readRearm:  make(chan struct{}, 1),
		writeRearm: make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	c.handle = loop.registerPort(c)
	c.onEstablished()

	if _, plain := stream.(*net.TCPConn); !plain {
		c.readStatus.Store(int32(ioAvailable))
		if handler != nil {
			handler.OnReadable(c)
		}
	}
	return c
}

func (c *TCPConnectionPort) onEstablished() {
	c.setState(ConnEstablished)
	c.wasEstablished.Store(true)

	c.watchersWG.Add(2)
	go c.watchDirection(true)
	go c.watchDirection(false)

	if c.handler != nil {
		c.handler.OnEstablished(c)
	}
}

// LocalAddr and RemoteAddr report the connection's endpoints.
func (c *TCPConnectionPort) LocalAddr() *net.TCPAddr  { return c.localAddr }
func (c *TCPConnectionPort) RemoteAddr() *net.TCPAddr { return c.remoteAddr }

// Handle returns the port's handle for Loop.RemovePort.
func (c *TCPConnectionPort) Handle() PortHandle { return c.handle }

// State returns the connection's current FSM state.
func (c *TCPConnectionPort) State() ConnState {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	return c.state
}

// WasFailed reports whether the connection ever latched a failure.
// Once latched it never clears.
func (c *TCPConnectionPort) WasFailed() bool { return c.wasFailed.Load() }

func (c *TCPConnectionPort) setState(s ConnState) {
	c.stMu.Lock()
	c.state = s
	c.stMu.Unlock()
}

// TryWrite writes up to len(buf) bytes, returning rocerr.ErrWouldBlock if
// the socket isn't currently writable, rocerr.ErrFailure on an
// unrecoverable error (which also latches WasFailed), or the byte count
// on success. Safe to call from any goroutine, serialized internally
// against FSM transitions.
func (c *TCPConnectionPort) TryWrite(buf []byte) (int, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	if c.wasFailed.Load() {
		return 0, rocerr.ErrFailure
	}

	c.writeStatus.Store(int32(ioInProgress))
	defer c.rearm(&c.writeStatus, c.writeRearm)

	_ = c.conn.SetWriteDeadline(time.Now())
	n, err := c.conn.Write(buf)
	_ = c.conn.SetWriteDeadline(time.Time{})
	if err == nil {
		return n, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, rocerr.ErrWouldBlock
	}
	c.latchFailure()
	return n, rocerr.ErrFailure
}

// TryRead reads up to len(buf) bytes. Returns rocerr.ErrWouldBlock if no
// data is currently available, rocerr.ErrStreamEnd once the peer has
// shut its write side gracefully (writes on this connection still work
// afterward), or rocerr.ErrFailure on an unrecoverable error.
func (c *TCPConnectionPort) TryRead(buf []byte) (int, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	if c.wasFailed.Load() {
		return 0, rocerr.ErrFailure
	}

	c.readStatus.Store(int32(ioInProgress))
	defer c.rearm(&c.readStatus, c.readRearm)

	_ = c.conn.SetReadDeadline(time.Now())
	n, err := c.conn.Read(buf)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return n, rocerr.ErrStreamEnd
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, rocerr.ErrWouldBlock
	}
	c.latchFailure()
	return n, rocerr.ErrFailure
}

func (c *TCPConnectionPort) latchFailure() {
	c.wasFailed.Store(true)
	c.setState(ConnBroken)
}

func (c *TCPConnectionPort) rearm(status *atomic.Int32, rearm chan struct{}) {
	status.Store(int32(ioNotAvailable))
	select {
	case rearm <- struct{}{}:
	default:
	}
}

// watchDirection waits for readability (read=true) or writability, marks
// the direction Available, and calls the handler exactly once per edge,
// then blocks until a TryRead/TryWrite call consumes the edge and rearms
// it. A raw wait cut short by a transient past deadline (TryRead/TryWrite
// probing non-blockingly, or AsyncTerminate waking us) is retried unless
// the connection is stopping.
func (c *TCPConnectionPort) watchDirection(read bool) {
	defer c.watchersWG.Done()

	status := &c.readStatus
	rearm := c.readRearm
	if !read {
		status = &c.writeStatus
		rearm = c.writeRearm
	}

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		rc, err := c.raw.SyscallConn()
		if err != nil {
			return
		}

		var waitErr error
		if read {
			waitErr = rc.Read(func(uintptr) bool { return true })
		} else {
			waitErr = rc.Write(func(uintptr) bool { return true })
		}
		if waitErr != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			if errors.Is(waitErr, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}

		status.Store(int32(ioAvailable))
		if c.handler != nil {
			if read {
				c.handler.OnReadable(c)
			} else {
				c.handler.OnWritable(c)
			}
		}

		select {
		case <-rearm:
		case <-c.stop:
			return
		}
	}
}

// AsyncTerminate latches the connection to Terminating and tears down the
// OS socket: a FIN-shutdown for TermNormal, an RST-reset for TermFailure.
// Must not be called twice on the same connection.
func (c *TCPConnectionPort) AsyncTerminate(mode TermMode) {
	if !c.terminateOnce.CompareAndSwap(false, true) {
		panic("netio: async_terminate called twice on the same connection")
	}
	c.terminate(mode)
}

func (c *TCPConnectionPort) terminate(mode TermMode) {
	c.setState(ConnTerminating)
	close(c.stop)
	// Wake watchers blocked in a raw readiness wait so WG.Wait can't
	// hang. Taken under ioMu so a concurrent TryRead/TryWrite can't clear
	// the wake deadline mid-flight; any try call starting after this sets
	// a past deadline itself before clearing, which also wakes watchers.
	c.ioMu.Lock()
	_ = c.conn.SetDeadline(time.Now())
	c.ioMu.Unlock()
	c.watchersWG.Wait()
	_ = c.conn.SetDeadline(time.Time{})

	if mode == TermFailure {
		c.wasFailed.Store(true)
		_ = c.raw.SetLinger(0) // forces RST on Close
	} else {
		_ = c.raw.CloseWrite()
	}

	c.setState(ConnTerminated)
	if c.handler != nil {
		c.handler.OnTerminated(c)
	}
}

// AsyncClose is the final teardown step; releases OS resources and
// notifies the handler once complete. Safe to call even if
// AsyncTerminate was never invoked (e.g. a refused client connection).
func (c *TCPConnectionPort) AsyncClose() {
	if !c.closeOnce.CompareAndSwap(false, true) {
		return
	}
	c.setState(ConnClosing)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.setState(ConnClosed)
	c.closeDone.Store(true)
	if c.handler != nil {
		c.handler.OnCloseCompleted(c)
	}
}

func (c *TCPConnectionPort) kind() portKind { return portKindTCPConnection }

func (c *TCPConnectionPort) beginClose() {
	if c.terminateOnce.CompareAndSwap(false, true) {
		c.terminate(TermNormal)
	}
	c.AsyncClose()
}

func (c *TCPConnectionPort) closeComplete() bool {
	return c.closeDone.Load()
}
