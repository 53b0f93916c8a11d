// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/soheilhy/cmux"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

// ServerHandler supplies the ConnHandler each sub-listener's accepted
// connections are wired to. A single instance of each is shared across
// every connection accepted on that sub-protocol.
type ServerHandler interface {
	// ControlConnHandler returns the handler for connections whose first
	// bytes matched the RTCP-control sub-protocol prefix.
	ControlConnHandler() ConnHandler
	// MediaConnHandler returns the handler for every other accepted
	// connection.
	MediaConnHandler() ConnHandler
}

// TCPServerPort is a listening socket that demultiplexes a single bind
// address into an RTCP-control sub-listener and a plain-media
// sub-listener by sniffing each connection's first bytes, instead of
// requiring one listener per sub-protocol.
type TCPServerPort struct {
	loop    *Loop
	handle  PortHandle
	log     rocutil.Logger
	handler ServerHandler

	ln   net.Listener
	cm   cmux.CMux
	ctrl net.Listener
	med  net.Listener

	closeOnce atomic.Bool
	closeDone atomic.Bool
	stop      chan struct{}
}

// controlProtocolPrefix is the byte sequence an RTCP-control connection
// writes first, letting cmux route it to the control sub-listener before
// any RTP/RTCP framing has been parsed.
var controlProtocolPrefix = []byte("ROC-CTL1")

// ListenTCP opens a listening socket at bindAddr and starts its accept
// loops on loop's goroutine group. Accepted connections are wired to
// handler.ControlConnHandler() or handler.MediaConnHandler() depending on
// their first bytes.
func ListenTCP(ctx context.Context, loop *Loop, bindAddr *net.TCPAddr, handler ServerHandler, log rocutil.Logger) (*TCPServerPort, error) {
	if log == nil {
		log = rocutil.NewNopLogger()
	}

	ln, err := net.ListenTCP("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	cm := cmux.New(ln)
	ctrlLn := cm.Match(cmux.PrefixMatcher(string(controlProtocolPrefix)))
	medLn := cm.Match(cmux.Any())

	s := &TCPServerPort{
		loop:    loop,
		log:     log,
		handler: handler,
		ln:      ln,
		cm:      cm,
		ctrl:    ctrlLn,
		med:     medLn,
		stop:    make(chan struct{}),
	}

	loop.ScheduleAndWait(ctx, func(l *Loop, t *Task) bool {
		s.handle = l.registerPort(s)
		return true
	})

	var ctrlHandler, medHandler ConnHandler
	if handler != nil {
		ctrlHandler = handler.ControlConnHandler()
		medHandler = handler.MediaConnHandler()
	}

	loop.group.Go(func() error {
		s.acceptLoop(s.ctrl, ctrlHandler)
		return nil
	})
	loop.group.Go(func() error {
		s.acceptLoop(s.med, medHandler)
		return nil
	})
	loop.group.Go(func() error {
		// cmux.Serve blocks demultiplexing connections between ctrlLn
		// and medLn until the root listener closes.
		if err := s.cm.Serve(); err != nil {
			s.log.Debugw("tcp server cmux stopped", "err", err)
		}
		return nil
	})

	return s, nil
}

// LocalAddr returns the server's bound address.
func (s *TCPServerPort) LocalAddr() net.Addr { return s.ln.Addr() }

// Handle returns the port's handle for Loop.RemovePort.
func (s *TCPServerPort) Handle() PortHandle { return s.handle }

func (s *TCPServerPort) acceptLoop(ln net.Listener, handler ConnHandler) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			s.log.Warnw("tcp server accept error", "err", err)
			return
		}

		raw, ok := underlyingTCP(conn)
		if !ok {
			_ = conn.Close()
			continue
		}

		newAcceptedTCP(s.loop, conn, raw, handler, s.log)
	}
}

// underlyingTCP digs the raw socket out of an accepted connection. cmux
// sub-listeners hand back a *cmux.MuxConn wrapping the socket with the
// sniffed bytes buffered for replay; the raw socket is still needed for
// shutdown and readiness waits.
func underlyingTCP(conn net.Conn) (*net.TCPConn, bool) {
	switch c := conn.(type) {
	case *net.TCPConn:
		return c, true
	case *cmux.MuxConn:
		tc, ok := c.Conn.(*net.TCPConn)
		return tc, ok
	}
	return nil, false
}

func (s *TCPServerPort) kind() portKind { return portKindTCPServer }

func (s *TCPServerPort) beginClose() {
	if !s.closeOnce.CompareAndSwap(false, true) {
		return
	}
	close(s.stop)
	s.cm.Close()
	_ = s.ln.Close()
	s.closeDone.Store(true)
}

func (s *TCPServerPort) closeComplete() bool {
	return s.closeDone.Load()
}
