// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/netio/socket"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocerr"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
)

// PacketWriter receives inbound packets forwarded by a UDPPort. Receiver
// sessions implement it to feed the reorder/jitter queue.
type PacketWriter interface {
	WritePacket(p *packet.Packet) error
}

// UDPConfig configures OpenUDP.
type UDPConfig struct {
	BindAddr       *net.UDPAddr
	ReuseAddr      bool
	MulticastGroup net.IP
	MulticastIface net.IP
	// InboundWriter receives every datagram read off the socket,
	// wrapped in a pooled Packet. May be nil (a write-only port).
	InboundWriter PacketWriter
	Pool          *packet.PacketPool
}

// UDPPort is a bound UDP socket with inbound dispatch and an outbound
// queue.
type UDPPort struct {
	loop   *Loop
	handle PortHandle
	log    rocutil.Logger

	fd        int
	bindAddr  *net.UDPAddr
	inbound   PacketWriter
	pool      *packet.PacketPool
	outbound  *core.MpscQueue[*packet.Packet]
	recvBuf   [packet.DefaultPacketBufSize]byte

	pendingPackets atomic.Int32
	wantClose      atomic.Bool

	mu           sync.Mutex
	writeEnabled bool
}

// OpenUDP opens a UDP port on loop's goroutine and registers it for
// inbound readiness. Must be called with a context; the open itself
// happens via Schedule so socket creation only ever races other port
// mutations through the loop's single-goroutine serialization.
func OpenUDP(ctx context.Context, loop *Loop, cfg UDPConfig, log rocutil.Logger) (*UDPPort, error) {
	if log == nil {
		log = rocutil.NewNopLogger()
	}
	if cfg.Pool == nil {
		cfg.Pool = packet.NewPacketPool()
	}

	up := &UDPPort{
		loop:     loop,
		log:      log,
		inbound:  cfg.InboundWriter,
		pool:     cfg.Pool,
		outbound: core.NewMpscQueue[*packet.Packet](),
	}

	var openErr error
	ok := loop.ScheduleAndWait(ctx, func(l *Loop, t *Task) bool {
		fd, bound, err := socket.OpenUDP(cfg.BindAddr, socket.UDPOptions{
			ReuseAddr:          cfg.ReuseAddr,
			MulticastGroup:     cfg.MulticastGroup,
			MulticastInterface: cfg.MulticastIface,
		})
		if err != nil {
			openErr = err
			return false
		}
		up.fd = fd
		up.bindAddr = bound

		if err := l.poller.add(fd, pollRead, up.onReadable); err != nil {
			socket.Close(fd)
			openErr = err
			return false
		}

		up.handle = l.registerPort(up)
		return true
	})
	if !ok {
		if openErr == nil {
			openErr = context.Canceled
		}
		return nil, openErr
	}
	return up, nil
}

// LocalAddr returns the address the port is bound to.
func (u *UDPPort) LocalAddr() *net.UDPAddr { return u.bindAddr }

// Handle returns the port's handle for Loop.RemovePort.
func (u *UDPPort) Handle() PortHandle { return u.handle }

// PendingPackets reports how many Write calls haven't yet reached the
// wire, for internal/metrics.
func (u *UDPPort) PendingPackets() int { return int(u.pendingPackets.Load()) }

// Write sends pkt to pkt.UDP.DstAddr. It tries a non-blocking sendto
// first; on EWOULDBLOCK it queues the packet and arms EPOLLOUT readiness.
func (u *UDPPort) Write(pkt *packet.Packet) error {
	if u.wantClose.Load() {
		return rocerr.ErrFailure
	}
	u.pendingPackets.Add(1)

	sent, err := socket.SendTo(u.fd, pkt.RTP.Payload, pkt.UDP.DstAddr)
	if err != nil {
		u.pendingPackets.Add(-1)
		return err
	}
	if sent {
		u.pendingPackets.Add(-1)
		return nil
	}

	u.outbound.PushBack(pkt)
	u.enableWriteReadiness()
	return nil
}

func (u *UDPPort) enableWriteReadiness() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.writeEnabled {
		return
	}
	u.writeEnabled = true
	_ = u.loop.poller.modify(u.fd, pollRead|pollWrite)
}

func (u *UDPPort) disableWriteReadiness() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.writeEnabled {
		return
	}
	u.writeEnabled = false
	_ = u.loop.poller.modify(u.fd, pollRead)
}

// onReadable is the poller callback invoked on the loop goroutine for
// both EPOLLIN and EPOLLOUT edges.
func (u *UDPPort) onReadable(ev pollEvents) {
	if ev&pollRead != 0 {
		u.drainInbound()
	}
	if ev&pollWrite != 0 {
		u.drainOutbound()
	}
}

func (u *UDPPort) drainInbound() {
	for {
		n, src, ok, err := socket.RecvFrom(u.fd, u.recvBuf[:])
		if err != nil {
			u.log.Warnw("udp recvfrom error, dropping datagram", "err", err)
			return
		}
		if !ok {
			return
		}
		if u.inbound == nil {
			continue
		}

		pkt := u.pool.Get()
		pkt.Flags = packet.FlagUDP
		pkt.UDP.SrcAddr = src
		pkt.UDP.DstAddr = u.bindAddr
		pkt.UDP.QueueTime = time.Now()
		pkt.Buf = append(pkt.Buf[:0], u.recvBuf[:n]...)
		pkt.RTP.Payload = pkt.Buf

		if err := u.inbound.WritePacket(pkt); err != nil {
			u.log.Warnw("inbound packet rejected", "err", err)
			u.pool.Put(pkt)
		}
	}
}

func (u *UDPPort) drainOutbound() {
	for {
		pkt, ok := u.outbound.TryPopFront()
		if !ok {
			u.disableWriteReadiness()
			return
		}
		sent, err := socket.SendTo(u.fd, pkt.RTP.Payload, pkt.UDP.DstAddr)
		u.pendingPackets.Add(-1)
		if err != nil {
			u.log.Warnw("udp sendto error", "err", err)
			continue
		}
		if !sent {
			// still not writable; put it back at the front conceptually
			// by re-queueing at the back (single consumer, so order
			// among the rest of the outbound queue is preserved well
			// enough for best-effort UDP delivery) and stop draining.
			u.pendingPackets.Add(1)
			u.outbound.PushBack(pkt)
			return
		}
	}
}

func (u *UDPPort) kind() portKind { return portKindUDP }

// beginClose latches the port closed to new writes; the loop then waits
// for PendingPackets to drain before releasing the socket.
func (u *UDPPort) beginClose() {
	u.wantClose.Store(true)
}

func (u *UDPPort) closeComplete() bool {
	u.drainOutbound()
	if u.pendingPackets.Load() > 0 {
		return false
	}
	u.loop.poller.remove(u.fd)
	socket.Close(u.fd)
	return true
}
