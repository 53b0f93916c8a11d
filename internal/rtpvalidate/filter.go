// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package rtpvalidate is the receiver session's RTP sequence validator
// and populate-duration step, sitting between the network loop's inbound
// packet writer and the jitter buffer.
package rtpvalidate

import (
	"errors"
	"fmt"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// ErrDropped is wrapped with a reason and returned by Filter.Validate for
// any packet the filter decides to discard. It is not one of the rocerr
// boundary error kinds: the caller (the receiver session's reorder stage)
// is expected to log it at debug level and move on, never propagate it.
var ErrDropped = errors.New("rtpvalidate: packet dropped")

// Config bounds how far an incoming packet's sequence number and
// timestamp may jump from the last accepted packet before it is
// considered a different stream (or corrupt) and dropped.
type Config struct {
	// MaxSnJump is the largest |Δseqnum| (16-bit modular) tolerated
	// between consecutive accepted packets.
	MaxSnJump uint16
	// MaxTsJump is the largest |Δtimestamp| (converted to wall-clock
	// duration via SampleSpec) tolerated between consecutive accepted
	// packets.
	MaxTsJump time.Duration
}

// Filter validates inbound RTP packets against the SSRC/payload-type
// established by the first accepted packet and against the configured
// sequence/timestamp jump bounds, and stamps Packet.RTP.Duration when the
// wire didn't carry an explicit duration.
//
// Not safe for concurrent use: a Filter belongs to exactly one receiver
// session's single-threaded packet ingestion path.
type Filter struct {
	cfg        Config
	sampleSpec audio.SampleSpec
	decoder    codec.FrameDecoder // optional; nil disables populate-duration

	initialized bool
	ssrc        uint32
	payloadType uint8
	lastSeq     uint16
	lastTS      packet.StreamTimestamp
	sawCapture  bool
}

// New constructs a Filter. decoder may be nil if the session's payload
// codec doesn't support DecodedSampleCount (e.g. a raw PCM codec that
// always stamps an explicit duration on the wire already).
func New(cfg Config, sampleSpec audio.SampleSpec, decoder codec.FrameDecoder) *Filter {
	return &Filter{cfg: cfg, sampleSpec: sampleSpec, decoder: decoder}
}

// Validate checks pkt against the established stream identity and jump
// bounds, populates pkt.RTP.Duration if it is zero, and returns nil to
// keep the packet or a wrapped ErrDropped to discard it. The first packet
// a Filter ever sees always establishes the stream identity and is never
// dropped on SSRC/payload-type grounds.
func (f *Filter) Validate(pkt *packet.Packet) error {
	if !pkt.Flags.Has(packet.FlagRTP) {
		return fmt.Errorf("%w: not an RTP packet", ErrDropped)
	}

	hdr := pkt.RTP.Header

	if !f.initialized {
		f.ssrc = hdr.SSRC
		f.payloadType = hdr.PayloadType
		f.lastSeq = hdr.SequenceNumber
		f.lastTS = packet.StreamTimestamp(hdr.Timestamp)
		f.initialized = true
	} else {
		if hdr.SSRC != f.ssrc {
			return fmt.Errorf("%w: ssrc changed %d -> %d", ErrDropped, f.ssrc, hdr.SSRC)
		}
		if hdr.PayloadType != f.payloadType {
			return fmt.Errorf("%w: payload type changed %d -> %d", ErrDropped, f.payloadType, hdr.PayloadType)
		}

		snJump := seqNumDiff(hdr.SequenceNumber, f.lastSeq)
		if absInt32(int32(snJump)) > int32(f.cfg.MaxSnJump) {
			return fmt.Errorf("%w: seqnum jump %d exceeds max %d", ErrDropped, snJump, f.cfg.MaxSnJump)
		}

		tsDiff := packet.StreamTimestamp(hdr.Timestamp).Diff(f.lastTS)
		tsJump := f.sampleSpec.StreamTimestampDeltaToNs(tsDiff)
		if absDuration(tsJump) > f.cfg.MaxTsJump {
			return fmt.Errorf("%w: timestamp jump %s exceeds max %s", ErrDropped, tsJump, f.cfg.MaxTsJump)
		}
	}

	captureIsZero := pkt.RTP.CaptureTimestamp.IsZero()
	if !captureIsZero && pkt.RTP.CaptureTimestamp.UnixNano() < 0 {
		return fmt.Errorf("%w: negative capture timestamp", ErrDropped)
	}
	if f.sawCapture && captureIsZero {
		return fmt.Errorf("%w: capture timestamp became zero", ErrDropped)
	}
	if !captureIsZero {
		f.sawCapture = true
	}

	f.lastSeq = hdr.SequenceNumber
	f.lastTS = packet.StreamTimestamp(hdr.Timestamp)

	f.populateDuration(pkt)
	return nil
}

// populateDuration: when a packet's declared duration is zero, ask the
// configured decoder how many samples its payload decodes to and stamp
// that onto the packet before it reaches the jitter buffer.
func (f *Filter) populateDuration(pkt *packet.Packet) {
	if pkt.RTP.Duration != 0 || f.decoder == nil {
		return
	}
	n := f.decoder.DecodedSampleCount(pkt.RTP.Payload)
	if n > 0 {
		pkt.RTP.Duration = packet.StreamTimestamp(n)
	}
}

// seqNumDiff returns a-b as a 16-bit modular signed difference.
func seqNumDiff(a, b uint16) int16 {
	return int16(a - b)
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
