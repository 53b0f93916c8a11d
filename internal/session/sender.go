// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/resample"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// SenderSession is the outbound mirror of ReceiverSession: it accepts
// application-rate raw frames, resamples and remaps them to the wire
// encoding's native rate/channels, and drives a Packetizer.
type SenderSession struct {
	id        uuid.UUID
	inputSpec audio.SampleSpec
	wireSpec  audio.SampleSpec

	mapper    *ChannelMapper
	resampler *resample.Resampler
	pktz      *Packetizer

	mapBuf []float32
}

// NewSenderSession builds a SenderSession accepting frames at inputSpec
// and encoding via encoder at wireSpec, emitting samplesPerPacket-sample
// RTP packets tagged payloadType to sink.
func NewSenderSession(inputSpec, wireSpec audio.SampleSpec, encoder codec.FrameEncoder, sink PacketSink, payloadType uint8, samplesPerPacket int, pool *packet.PacketPool) (*SenderSession, error) {
	s := &SenderSession{
		id:        uuid.New(),
		inputSpec: inputSpec,
		wireSpec:  wireSpec,
		mapper:    NewChannelMapper(inputSpec.NumChannels(), wireSpec.NumChannels()),
		pktz:      NewPacketizer(encoder, sink, wireSpec, payloadType, samplesPerPacket, pool),
	}
	if inputSpec.SampleRate != wireSpec.SampleRate {
		r, err := resample.New(int(inputSpec.SampleRate), int(wireSpec.SampleRate), wireSpec.NumChannels())
		if err != nil {
			return nil, fmt.Errorf("session: build sender resampler: %w", err)
		}
		s.resampler = r
	}
	return s, nil
}

// ID returns the session's unique identity, used to correlate log lines
// and reports across the sender's slots.
func (s *SenderSession) ID() uuid.UUID { return s.id }

// WriteFrame pushes one application frame through the channel-map /
// resample / packetize chain.
func (s *SenderSession) WriteFrame(frame *audio.Frame) error {
	mapped := s.mapper.Map(frame.Raw, s.mapBuf)
	s.mapBuf = mapped

	samples := mapped
	if s.resampler != nil {
		resampled, err := s.resampler.Process(mapped)
		if err != nil {
			return fmt.Errorf("session: resample: %w", err)
		}
		samples = resampled
	}
	return s.pktz.Write(samples)
}

// Flush emits any partially-filled outbound packet.
func (s *SenderSession) Flush() error {
	return s.pktz.Flush()
}
