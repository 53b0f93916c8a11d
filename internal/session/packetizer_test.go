// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// fakeEncoder encodes each sample as one byte, good enough to verify
// packet boundaries without depending on a real codec.
type fakeEncoder struct{}

func (fakeEncoder) Encode(samples []float32, buf []byte) ([]byte, error) {
	for range samples {
		buf = append(buf, 0xAA)
	}
	return buf, nil
}

type fakeSink struct {
	packets []*packet.Packet
}

func (s *fakeSink) Write(pkt *packet.Packet) error {
	s.packets = append(s.packets, pkt)
	return nil
}

func TestPacketizerEmitsOnFullBuffer(t *testing.T) {
	sink := &fakeSink{}
	p := NewPacketizer(fakeEncoder{}, sink, audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, 9, 160, nil)

	require.NoError(t, p.Write(make([]float32, 160)))
	require.Len(t, sink.packets, 1)
	assert.Equal(t, packet.StreamTimestamp(160), sink.packets[0].RTP.Duration)
	assert.Equal(t, uint8(9), sink.packets[0].RTP.Header.PayloadType)

	require.NoError(t, p.Write(make([]float32, 320)))
	assert.Len(t, sink.packets, 3)
}

func TestPacketizerTimestampsAreMonotonic(t *testing.T) {
	sink := &fakeSink{}
	p := NewPacketizer(fakeEncoder{}, sink, audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, 9, 160, nil)

	require.NoError(t, p.Write(make([]float32, 480)))
	require.Len(t, sink.packets, 3)
	assert.Equal(t, sink.packets[0].RTP.Header.Timestamp+160, sink.packets[1].RTP.Header.Timestamp)
	assert.Equal(t, sink.packets[1].RTP.Header.Timestamp+160, sink.packets[2].RTP.Header.Timestamp)
	assert.Equal(t, sink.packets[0].RTP.Header.SequenceNumber+1, sink.packets[1].RTP.Header.SequenceNumber)
}

func TestPacketizerFlushEmitsPartialPacket(t *testing.T) {
	sink := &fakeSink{}
	p := NewPacketizer(fakeEncoder{}, sink, audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, 9, 160, nil)

	require.NoError(t, p.Write(make([]float32, 50)))
	assert.Empty(t, sink.packets)

	require.NoError(t, p.Flush())
	require.Len(t, sink.packets, 1)
	assert.Equal(t, packet.StreamTimestamp(50), sink.packets[0].RTP.Duration)

	require.NoError(t, p.Flush())
	assert.Len(t, sink.packets, 1, "flushing an empty buffer emits nothing")
}
