// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rtpvalidate

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

func rtpPacket(ssrc uint32, pt uint8, seq uint16, ts uint32) *packet.Packet {
	p := &packet.Packet{Flags: packet.FlagRTP}
	p.RTP.Header = rtp.Header{SSRC: ssrc, PayloadType: pt, SequenceNumber: seq, Timestamp: ts}
	return p
}

func newFilter() *Filter {
	return New(Config{MaxSnJump: 100, MaxTsJump: 200 * time.Millisecond},
		audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, nil)
}

func TestFilterFirstPacketEstablishesIdentity(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
}

func TestFilterDropsSsrcChange(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
	err := f.Validate(rtpPacket(2, 9, 101, 8160))
	assert.ErrorIs(t, err, ErrDropped)
}

func TestFilterDropsPayloadTypeChange(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
	err := f.Validate(rtpPacket(1, 10, 101, 8160))
	assert.ErrorIs(t, err, ErrDropped)
}

func TestFilterDropsSeqnumJump(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
	err := f.Validate(rtpPacket(1, 9, 1000, 8160))
	assert.ErrorIs(t, err, ErrDropped)
}

func TestFilterDropsTimestampJump(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
	// 200ms at 8kHz is 1600 ticks; jump far beyond the 200ms bound.
	err := f.Validate(rtpPacket(1, 9, 101, 8000+16000))
	assert.ErrorIs(t, err, ErrDropped)
}

func TestFilterAcceptsInOrderStream(t *testing.T) {
	f := newFilter()
	require.NoError(t, f.Validate(rtpPacket(1, 9, 100, 8000)))
	require.NoError(t, f.Validate(rtpPacket(1, 9, 101, 8160)))
	require.NoError(t, f.Validate(rtpPacket(1, 9, 102, 8320)))
}

func TestFilterDropsCaptureTimestampBecomingZero(t *testing.T) {
	f := newFilter()
	p1 := rtpPacket(1, 9, 100, 8000)
	p1.RTP.CaptureTimestamp = time.Unix(1000, 0)
	require.NoError(t, f.Validate(p1))

	p2 := rtpPacket(1, 9, 101, 8160)
	// CaptureTimestamp left as the zero time.
	err := f.Validate(p2)
	assert.ErrorIs(t, err, ErrDropped)
}

func TestFilterPopulatesDurationFromDecoder(t *testing.T) {
	dec := &fakeDecoder{sampleCount: 160}
	f := New(Config{MaxSnJump: 100, MaxTsJump: time.Second},
		audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, dec)

	p := rtpPacket(1, 9, 100, 8000)
	require.NoError(t, f.Validate(p))
	assert.Equal(t, packet.StreamTimestamp(160), p.RTP.Duration)
}

func TestFilterSkipsPopulateWhenDurationAlreadySet(t *testing.T) {
	dec := &fakeDecoder{sampleCount: 160}
	f := New(Config{MaxSnJump: 100, MaxTsJump: time.Second},
		audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}, dec)

	p := rtpPacket(1, 9, 100, 8000)
	p.RTP.Duration = 42
	require.NoError(t, f.Validate(p))
	assert.Equal(t, packet.StreamTimestamp(42), p.RTP.Duration)
}

// fakeDecoder implements codec.FrameDecoder's DecodedSampleCount only;
// the rest of the interface is unused by Filter.
type fakeDecoder struct {
	sampleCount int
}

func (d *fakeDecoder) Position() packet.StreamTimestamp { return 0 }
func (d *fakeDecoder) Available() packet.StreamTimestamp { return 0 }
func (d *fakeDecoder) DecodedSampleCount(frameData []byte) int { return d.sampleCount }
func (d *fakeDecoder) BeginFrame(packet.StreamTimestamp, []byte) error { return nil }
func (d *fakeDecoder) ReadSamples([]float32) int { return 0 }
func (d *fakeDecoder) DropSamples(int) int { return 0 }
func (d *fakeDecoder) EndFrame() {}
