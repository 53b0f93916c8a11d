// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

//go:build linux

// Epoll-backed readiness poller: a direct fd-to-callback table with
// dispatch inlined on the loop goroutine, plus an eventfd wake channel so
// other goroutines can interrupt a blocked wait.

package netio

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// pollEvents is a bitmask of readiness conditions a poller callback cares
// about.
type pollEvents uint32

const (
	pollRead pollEvents = 1 << iota
	pollWrite
	pollError
	pollHangup
)

type fdCallback func(pollEvents)

type poller struct {
	epfd   int
	wakeFd int

	mu    sync.RWMutex
	cbs   map[int]fdCallback
	evbuf [256]unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netio: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("netio: eventfd: %w", err)
	}

	p := &poller{epfd: epfd, wakeFd: wakeFd, cbs: make(map[int]fdCallback)}
	if err := p.add(wakeFd, pollRead, func(pollEvents) { p.drainWake() }); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, err
	}
	return p, nil
}

func (p *poller) close() {
	unix.Close(p.epfd)
	unix.Close(p.wakeFd)
}

// wake unblocks a concurrent wait() call from any goroutine; used by
// Schedule to make newly-queued tasks visible promptly.
func (p *poller) wake() {
	var one [8]byte
	one[0] = 1
	_, _ = unix.Write(p.wakeFd, one[:])
}

func (p *poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *poller) add(fd int, events pollEvents, cb fdCallback) error {
	p.mu.Lock()
	p.cbs[fd] = cb
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.mu.Lock()
		delete(p.cbs, fd)
		p.mu.Unlock()
		return fmt.Errorf("netio: epoll_ctl add: %w", err)
	}
	return nil
}

func (p *poller) modify(fd int, events pollEvents) error {
	ev := &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("netio: epoll_ctl mod: %w", err)
	}
	return nil
}

func (p *poller) remove(fd int) {
	p.mu.Lock()
	delete(p.cbs, fd)
	p.mu.Unlock()
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMs (negative means forever) for readiness and
// dispatches every ready fd's callback inline, on the calling goroutine
// (the network loop's single goroutine).
func (p *poller) wait(timeoutMs int) {
	n, err := unix.EpollWait(p.epfd, p.evbuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return
		}
		return
	}
	for i := 0; i < n; i++ {
		fd := int(p.evbuf[i].Fd)
		p.mu.RLock()
		cb := p.cbs[fd]
		p.mu.RUnlock()
		if cb != nil {
			cb(fromEpoll(p.evbuf[i].Events))
		}
	}
}

func toEpoll(e pollEvents) uint32 {
	var out uint32
	if e&pollRead != 0 {
		out |= unix.EPOLLIN
	}
	if e&pollWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func fromEpoll(e uint32) pollEvents {
	var out pollEvents
	if e&unix.EPOLLIN != 0 {
		out |= pollRead
	}
	if e&unix.EPOLLOUT != 0 {
		out |= pollWrite
	}
	if e&unix.EPOLLERR != 0 {
		out |= pollError
	}
	if e&unix.EPOLLHUP != 0 {
		out |= pollHangup
	}
	return out
}
