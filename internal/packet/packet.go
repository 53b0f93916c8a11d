// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package packet

import (
	"net"
	"time"

	"github.com/pion/rtp"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
)

// Flags describes which views a Packet carries and what role it plays in
// the pipeline.
type Flags uint32

const (
	// FlagUDP means the packet has a UDP source/destination view.
	FlagUDP Flags = 1 << iota
	// FlagRTP means the packet has a parsed RTP view.
	FlagRTP
	// FlagRTCP means the packet carries an RTCP compound packet.
	FlagRTCP
	// FlagAudio means the RTP payload is encoded/raw audio.
	FlagAudio
	// FlagRepair means the packet is FEC repair data, not source data.
	FlagRepair
	// FlagRestored means the packet was reconstructed by the FEC decoder
	// rather than received off the wire.
	FlagRestored
)

// Has reports whether all bits of other are set in f.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// UDPView carries the UDP-layer addressing and receive-time metadata of a
// packet, populated by the network loop's UDP port on inbound packets and
// by the sender session on outbound ones.
type UDPView struct {
	SrcAddr   *net.UDPAddr
	DstAddr   *net.UDPAddr
	QueueTime time.Time // when the packet was read off (or queued onto) the socket
}

// RTPView wraps the parsed pion/rtp header and payload plus the fields the
// pipeline derives from it (capture timestamp in nanoseconds, stream
// timestamp arithmetic helpers).
type RTPView struct {
	Header  rtp.Header
	Payload []byte

	// Duration is the packet's payload length in samples per channel. Zero
	// until the filter's populate-duration step (internal/rtpvalidate)
	// stamps it from the configured decoder.
	Duration StreamTimestamp

	// CaptureTimestamp is the sender-side wall-clock time the first
	// sample of this packet was captured, or the zero Time if unknown.
	CaptureTimestamp time.Time
}

// StreamTimestamp returns the RTP header timestamp as a StreamTimestamp.
func (v *RTPView) StreamTimestamp() StreamTimestamp {
	return StreamTimestamp(v.Header.Timestamp)
}

// Packet is the pooled unit of data the network loop, sessions, and FEC
// layer pass around. It is not refcounted: callers simply stop referencing
// it, and the pool it came from (see NewPacketPool) reclaims its backing
// array via the GC if it is never explicitly returned.
type Packet struct {
	Flags Flags

	UDP UDPView
	RTP RTPView

	// Buf is the raw wire bytes backing RTP.Payload; packetizers reuse it
	// across sends to avoid per-packet allocation on the hot path.
	Buf []byte
}

// Reset clears a packet for reuse from a pool, keeping Buf's backing
// array.
func (p *Packet) Reset() {
	buf := p.Buf
	if buf != nil {
		buf = buf[:0]
	}
	*p = Packet{Buf: buf}
}

// PacketPool hands out pooled *Packet values sized to fit typical RTP MTUs.
type PacketPool struct {
	pool *core.Pool[Packet]
}

// DefaultPacketBufSize is sized for a typical Ethernet-MTU RTP datagram
// (1500 byte MTU minus the 20-byte IPv4 and 8-byte UDP headers; the RTP
// header is held in the buffer).
const DefaultPacketBufSize = 1472

// NewPacketPool returns a PacketPool whose Get() allocates DefaultPacketBufSize
// byte buffers on first use.
func NewPacketPool() *PacketPool {
	return &PacketPool{
		pool: core.NewPool(func() *Packet {
			return &Packet{Buf: make([]byte, 0, DefaultPacketBufSize)}
		}, 0),
	}
}

// Get returns a cleared packet ready for reuse.
func (p *PacketPool) Get() *Packet {
	pkt := p.pool.Get()
	pkt.Reset()
	return pkt
}

// Put returns pkt to the pool. The caller must not touch pkt afterward.
func (p *PacketPool) Put(pkt *Packet) {
	p.pool.Put(pkt)
}
