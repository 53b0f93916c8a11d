// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"math"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// PacketReader supplies the Depacketizer with packets one at a time, in
// ascending stream-timestamp order, or nil when none is currently
// available (the caller should fill with silence and keep going).
type PacketReader interface {
	ReadPacket() *packet.Packet
}

// Depacketizer drives a payload decoder across a stream of packets,
// filling losses with silence (or, in loss-beep mode, a fixed tone) and
// maintaining the frame-level HasSignal/HasGaps/HasDrops flags.
type Depacketizer struct {
	reader  PacketReader
	decoder codec.FrameDecoder
	spec    audio.SampleSpec

	lossBeep   bool
	beepPhase  float64
	beepFreqHz float64

	position    packet.StreamTimestamp
	initialized bool

	pending *packet.Packet // a packet read from reader but not yet fully consumed
}

// defaultBeepFreqHz is an easily-recognizable tone (concert A) used by
// the loss-beep diagnostic mode instead of silence.
const defaultBeepFreqHz = 440.0

// NewDepacketizer returns a Depacketizer reading packets from reader and
// decoding their payloads with decoder, producing samples at spec's rate
// and channel layout.
func NewDepacketizer(reader PacketReader, decoder codec.FrameDecoder, spec audio.SampleSpec) *Depacketizer {
	return &Depacketizer{
		reader:     reader,
		decoder:    decoder,
		spec:       spec,
		beepFreqHz: defaultBeepFreqHz,
	}
}

// WithLossBeep enables or disables the "beep on packet loss" diagnostic
// mode: concealment fill uses a fixed tone instead of silence, making
// losses audible during manual testing.
func (d *Depacketizer) WithLossBeep(enabled bool) *Depacketizer {
	d.lossBeep = enabled
	return d
}

// ReadFrame fills frame with exactly frame.Duration stream-timestamp
// ticks' worth of samples,
// setting HasSignal/HasGaps/HasDrops/CaptureTimestamp as it goes. frame.Raw
// must already be sized for frame.Duration samples per channel times the
// channel count; ReadFrame overwrites it in place.
func (d *Depacketizer) ReadFrame(frame *audio.Frame) error {
	channels := d.spec.NumChannels()
	needed := int(frame.Duration) * channels
	if cap(frame.Raw) < needed {
		frame.Raw = make([]float32, needed)
	}
	frame.Raw = frame.Raw[:needed]
	frame.Flags = 0
	frame.CaptureTimestamp = time.Time{}

	pos := 0
	for pos < needed {
		pkt := d.nextUsablePacket(frame)
		if pkt == nil {
			d.fillConcealment(frame.Raw[pos:])
			frame.Flags |= audio.FlagHasGaps
			pos = needed
			break
		}

		if !d.initialized {
			d.position = packet.StreamTimestamp(pkt.RTP.Header.Timestamp)
			d.initialized = true
		}

		ts := packet.StreamTimestamp(pkt.RTP.Header.Timestamp)
		if gap := ts.Diff(d.position); gap > 0 {
			// Next usable packet is ahead of the read position: the packet(s)
			// that should have covered [position, ts) never arrived (or
			// arrived too late and were already dropped above). Conceal the
			// gap up to ts (or frame end, whichever comes first) before
			// touching pkt's own payload, so the loss isn't spliced away.
			remaining := needed - pos
			gapSamples := int(gap) * channels
			toFill := min(gapSamples, remaining)
			d.fillConcealment(frame.Raw[pos : pos+toFill])
			frame.Flags |= audio.FlagHasGaps
			pos += toFill
			d.position = d.position.Add(packet.StreamTimestampDiff(toFill / channels))
			continue
		}

		d.decoder.BeginFrame(packet.StreamTimestamp(pkt.RTP.Header.Timestamp), pkt.RTP.Payload)
		if consumed := d.position.Diff(ts); consumed > 0 {
			// pkt was partly read by an earlier ReadFrame: skip the samples
			// already delivered instead of repeating them.
			d.decoder.DropSamples(int(consumed))
		}
		available := int(d.decoder.Available()) * channels
		remaining := needed - pos
		toRead := min(available, remaining)

		n := d.decoder.ReadSamples(frame.Raw[pos : pos+toRead])
		if n > 0 && !frame.HasCaptureTimestamp() && !pkt.RTP.CaptureTimestamp.IsZero() {
			frame.CaptureTimestamp = pkt.RTP.CaptureTimestamp
		}
		d.decoder.EndFrame()

		if n < toRead {
			d.fillConcealment(frame.Raw[pos+n : pos+toRead])
			frame.Flags |= audio.FlagHasGaps
		}
		if n > 0 {
			frame.Flags |= audio.FlagHasSignal
		}

		pos += toRead
		d.position = d.position.Add(packet.StreamTimestampDiff(toRead / channels))

		if d.decoder.Available() == 0 {
			d.pending = nil
		}
	}

	return nil
}

// nextUsablePacket returns the packet to decode from next, discarding any
// packets whose timestamp is strictly behind the depacketizer's current
// read position and marking frame.HasDrops when that happens. It does not itself handle
// packets whose timestamp is ahead of position (a gap); ReadFrame conceals
// that case before decoding the returned packet.
func (d *Depacketizer) nextUsablePacket(frame *audio.Frame) *packet.Packet {
	for {
		if d.pending != nil {
			return d.pending
		}
		pkt := d.reader.ReadPacket()
		if pkt == nil {
			return nil
		}
		if d.initialized {
			ts := packet.StreamTimestamp(pkt.RTP.Header.Timestamp)
			if ts.Diff(d.position) < 0 {
				frame.Flags |= audio.FlagHasDrops
				continue
			}
		}
		d.pending = pkt
		return pkt
	}
}

// fillConcealment writes silence, or a fixed tone in loss-beep mode, into
// out.
func (d *Depacketizer) fillConcealment(out []float32) {
	if !d.lossBeep {
		for i := range out {
			out[i] = 0
		}
		return
	}
	step := d.beepFreqHz / float64(d.spec.SampleRate)
	for i := range out {
		out[i] = float32(0.1 * math.Sin(2*math.Pi*d.beepPhase))
		d.beepPhase += step
		if d.beepPhase >= 1 {
			d.beepPhase -= 1
		}
	}
}
