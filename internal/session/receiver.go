// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/resample"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rtpvalidate"
)

// ReceiverConfig bundles a ReceiverSession's tunables: the rtpvalidate
// jump bounds, target jitter latency, and watchdog timeouts.
type ReceiverConfig struct {
	Validate        rtpvalidate.Config
	TargetLatency   time.Duration
	NoSignalTimeout time.Duration
	GapTimeout      time.Duration
	LossBeep        bool
}

// ReceiverSession wires the full inbound chain:
// Filter -> SortedQueue -> DelayedReader -> Watchdog (checked per frame) ->
// FECReader -> Depacketizer -> ChannelMapper -> Resampler -> caller. It
// implements packet.PacketWriter so a network loop's UDPPort can feed it
// directly as its InboundWriter.
type ReceiverSession struct {
	id  uuid.UUID
	cfg ReceiverConfig
	log rocutil.Logger

	queue     *SortedQueue
	filter    *rtpvalidate.Filter
	delayed   *DelayedReader
	fec       *FECReader
	dpkt      *Depacketizer
	watchdog  *Watchdog
	mapper    *ChannelMapper
	resampler *resample.Resampler

	decoderSpec audio.SampleSpec // decoder's native rate/channels
	outputSpec  audio.SampleSpec // what ReadFrame delivers
	mapBuf      []float32
}

// NewReceiverSession constructs a ReceiverSession decoding with decoder
// (native rate/channels decoderSpec) and resampling/remapping to
// outputSpec. fec may be nil if the session's endpoint has no repair
// sub-channel configured.
func NewReceiverSession(cfg ReceiverConfig, decoder codec.FrameDecoder, decoderSpec, outputSpec audio.SampleSpec, fecDecoder FECDecoder, log rocutil.Logger) (*ReceiverSession, error) {
	if log == nil {
		log = rocutil.NewNopLogger()
	}

	s := &ReceiverSession{
		id:          uuid.New(),
		cfg:         cfg,
		log:         log,
		queue:       NewSortedQueue(),
		filter:      rtpvalidate.New(cfg.Validate, decoderSpec, decoder),
		decoderSpec: decoderSpec,
		outputSpec:  outputSpec,
		watchdog:    NewWatchdog(cfg.NoSignalTimeout, cfg.GapTimeout),
		mapper:      NewChannelMapper(decoderSpec.NumChannels(), outputSpec.NumChannels()),
	}
	s.delayed = NewDelayedReader(s.queue, cfg.TargetLatency, decoderSpec.SampleRate)
	s.fec = NewFECReader(s.delayed, fecDecoder)
	s.dpkt = NewDepacketizer(s.fec, decoder, decoderSpec).WithLossBeep(cfg.LossBeep)

	if decoderSpec.SampleRate != outputSpec.SampleRate {
		r, err := resample.New(int(decoderSpec.SampleRate), int(outputSpec.SampleRate), outputSpec.NumChannels())
		if err != nil {
			return nil, fmt.Errorf("session: build resampler: %w", err)
		}
		s.resampler = r
	}

	log.Debugw("receiver session created", "session_id", s.id)
	return s, nil
}

// ID returns the session's unique identity, used to correlate log lines
// and reports across the receiver's slots.
func (s *ReceiverSession) ID() uuid.UUID { return s.id }

// WritePacket implements packet.PacketWriter: it parses pkt's raw bytes
// into an RTP view (if not already parsed) and enqueues it for reorder.
// Packets failing RTP parsing are dropped and logged.
func (s *ReceiverSession) WritePacket(pkt *packet.Packet) error {
	if !pkt.Flags.Has(packet.FlagRTP) {
		var hdr rtp.Header
		off, err := hdr.Unmarshal(pkt.Buf)
		if err != nil {
			s.log.Warnw("dropping packet with unparseable RTP header", "err", err)
			return nil
		}
		pkt.RTP.Header = hdr
		pkt.RTP.Payload = pkt.Buf[off:]
		pkt.Flags |= packet.FlagRTP
	}

	if s.cfg.Validate.MaxSnJump > 0 || s.cfg.Validate.MaxTsJump > 0 {
		if err := s.filter.Validate(pkt); err != nil {
			s.log.Debugw("rtp filter dropped packet", "reason", err)
			return nil
		}
	}

	s.queue.Push(pkt)
	return nil
}

// ReadFrame fills frame (already sized to the caller's desired duration in
// outputSpec ticks) with decoded, concealment-filled, remapped and
// resampled audio, updating the watchdog. Returns the watchdog's liveness
// after this frame, i.e. false once the stream is considered dead.
func (s *ReceiverSession) ReadFrame(frame *audio.Frame, frameDuration time.Duration) (bool, error) {
	decoderDuration := packet.NsToStreamTimestamp(frameDuration, s.decoderSpec.SampleRate)

	decoded := &audio.Frame{Duration: decoderDuration}
	if err := s.dpkt.ReadFrame(decoded); err != nil {
		return false, err
	}

	mapped := s.mapper.Map(decoded.Raw, s.mapBuf)
	s.mapBuf = mapped

	out := mapped
	if s.resampler != nil {
		resampled, err := s.resampler.Process(mapped)
		if err != nil {
			return false, fmt.Errorf("session: resample: %w", err)
		}
		out = resampled
	}

	frame.Flags = decoded.Flags
	frame.CaptureTimestamp = decoded.CaptureTimestamp
	frame.IsRaw = true
	if cap(frame.Raw) < len(out) {
		frame.Raw = make([]float32, len(out))
	}
	frame.Raw = frame.Raw[:len(out)]
	copy(frame.Raw, out)
	frame.Duration = packet.NsToStreamTimestamp(frameDuration, s.outputSpec.SampleRate)

	alive := s.watchdog.Update(frame, frameDuration)
	return alive, nil
}

// HandleRepairPacket forwards a packet received on the session's repair
// endpoint to the FEC reader.
func (s *ReceiverSession) HandleRepairPacket(repairPacket *packet.Packet) {
	s.fec.HandleRepairPacket(repairPacket)
}
