// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"math/rand"

	"github.com/pion/rtp"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// PacketSink is the outbound destination a Packetizer writes composed RTP
// packets to, typically a netio.UDPPort's Write method. Declared locally
// rather than importing internal/netio to keep the session layer
// independent of the transport layer.
type PacketSink interface {
	Write(pkt *packet.Packet) error
}

// Packetizer accumulates encoded samples into fixed-size RTP payloads and
// emits them to a PacketSink.
type Packetizer struct {
	encoder codec.FrameEncoder
	sink    PacketSink
	spec    audio.SampleSpec
	pool    *packet.PacketPool

	ssrc            uint32
	payloadType     uint8
	samplesPerPacket int

	seq       uint16
	timestamp uint32

	pending []float32
}

// NewPacketizer returns a Packetizer filling payloads of
// samplesPerPacket samples per channel before emitting, tagged with
// payloadType and a fixed per-session ssrc.
func NewPacketizer(encoder codec.FrameEncoder, sink PacketSink, spec audio.SampleSpec, payloadType uint8, samplesPerPacket int, pool *packet.PacketPool) *Packetizer {
	if pool == nil {
		pool = packet.NewPacketPool()
	}
	return &Packetizer{
		encoder:          encoder,
		sink:             sink,
		spec:             spec,
		pool:             pool,
		ssrc:             rand.Uint32(),
		payloadType:      payloadType,
		samplesPerPacket: samplesPerPacket,
		seq:              uint16(rand.Uint32()),
	}
}

// Write accumulates samples (interleaved, spec.NumChannels() per frame)
// and emits full packets as they fill. Each emitted packet gets the next
// monotonic seqnum and a timestamp advanced by its sample count.
func (p *Packetizer) Write(samples []float32) error {
	p.pending = append(p.pending, samples...)

	frameSamples := p.samplesPerPacket * p.spec.NumChannels()
	for len(p.pending) >= frameSamples {
		if err := p.emit(p.pending[:frameSamples], p.samplesPerPacket); err != nil {
			return err
		}
		p.pending = p.pending[frameSamples:]
	}
	return nil
}

// Flush emits the currently accumulating partial packet with its true
// sample count.
func (p *Packetizer) Flush() error {
	if len(p.pending) == 0 {
		return nil
	}
	n := len(p.pending) / p.spec.NumChannels()
	err := p.emit(p.pending, n)
	p.pending = p.pending[:0]
	return err
}

func (p *Packetizer) emit(samples []float32, sampleCount int) error {
	pkt := p.pool.Get()
	encoded, err := p.encoder.Encode(samples, nil)
	if err != nil {
		p.pool.Put(pkt)
		return err
	}

	hdr := rtp.Header{
		Version:        2,
		PayloadType:    p.payloadType,
		SequenceNumber: p.seq,
		Timestamp:      p.timestamp,
		SSRC:           p.ssrc,
	}

	// The network loop's UDP port sends pkt.RTP.Payload verbatim as the
	// datagram body (see internal/netio/udp_port.go), so the wire-level
	// RTP packet (header + encoded payload) is marshaled here, not left
	// for the transport layer to assemble.
	wire := rtp.Packet{Header: hdr, Payload: encoded}
	n, err := wire.MarshalTo(pkt.Buf[:cap(pkt.Buf)])
	if err != nil {
		pkt.Buf, err = wire.Marshal()
		if err != nil {
			p.pool.Put(pkt)
			return err
		}
		n = len(pkt.Buf)
	}

	pkt.Flags = packet.FlagRTP | packet.FlagAudio
	pkt.RTP.Header = hdr
	pkt.RTP.Payload = pkt.Buf[:n]
	pkt.RTP.Duration = packet.StreamTimestamp(sampleCount)

	p.seq++
	p.timestamp += uint32(sampleCount)

	return p.sink.Write(pkt)
}
