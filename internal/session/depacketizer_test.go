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

// pcmDecoder treats each payload byte as one already-decoded sample
// (value/255), avoiding any dependency on a real codec in these tests.
type pcmDecoder struct {
	data     []byte
	position packet.StreamTimestamp
	cursor   int
}

func (d *pcmDecoder) Position() packet.StreamTimestamp { return d.position }
func (d *pcmDecoder) Available() packet.StreamTimestamp {
	return packet.StreamTimestamp(len(d.data) - d.cursor)
}
func (d *pcmDecoder) DecodedSampleCount(frameData []byte) int { return len(frameData) }
func (d *pcmDecoder) BeginFrame(framePosition packet.StreamTimestamp, frameData []byte) error {
	d.data = frameData
	d.position = framePosition
	d.cursor = 0
	return nil
}
func (d *pcmDecoder) ReadSamples(samples []float32) int {
	n := 0
	for n < len(samples) && d.cursor < len(d.data) {
		samples[n] = float32(d.data[d.cursor]) / 255
		d.cursor++
		n++
	}
	return n
}
func (d *pcmDecoder) DropSamples(n int) int {
	dropped := 0
	for dropped < n && d.cursor < len(d.data) {
		d.cursor++
		dropped++
	}
	return dropped
}
func (d *pcmDecoder) EndFrame() {}

type queuePacketReader struct {
	packets []*packet.Packet
}

func (q *queuePacketReader) ReadPacket() *packet.Packet {
	if len(q.packets) == 0 {
		return nil
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	return p
}

func monoSpec() audio.SampleSpec {
	return audio.SampleSpec{SampleRate: 8000, ChannelMask: audio.ChannelMono}
}

func rtpDataPacket(ts uint32, payload []byte) *packet.Packet {
	p := &packet.Packet{Flags: packet.FlagRTP}
	p.RTP.Header.Version = 2
	p.RTP.Header.Timestamp = ts
	p.RTP.Payload = payload
	return p
}

func TestDepacketizerFillsSilenceWhenNoPacketAvailable(t *testing.T) {
	reader := &queuePacketReader{}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec())

	frame := &audio.Frame{Duration: 10}
	require.NoError(t, dpkt.ReadFrame(frame))

	assert.False(t, frame.HasFlags(audio.FlagHasSignal))
	assert.True(t, frame.HasFlags(audio.FlagHasGaps))
	for _, s := range frame.Raw {
		assert.Zero(t, s)
	}
}

func TestDepacketizerDecodesFullFrameFromOnePacket(t *testing.T) {
	reader := &queuePacketReader{packets: []*packet.Packet{
		rtpDataPacket(0, []byte{255, 255, 255, 255, 255}),
	}}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec())

	frame := &audio.Frame{Duration: 5}
	require.NoError(t, dpkt.ReadFrame(frame))

	assert.True(t, frame.HasFlags(audio.FlagHasSignal))
	assert.False(t, frame.HasFlags(audio.FlagHasGaps))
	for _, s := range frame.Raw {
		assert.InDelta(t, 1.0, s, 0.01)
	}
}

func TestDepacketizerConcealsPartialPacket(t *testing.T) {
	reader := &queuePacketReader{packets: []*packet.Packet{
		rtpDataPacket(0, []byte{255, 255}),
	}}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec())

	frame := &audio.Frame{Duration: 5}
	require.NoError(t, dpkt.ReadFrame(frame))

	assert.True(t, frame.HasFlags(audio.FlagHasSignal))
	assert.True(t, frame.HasFlags(audio.FlagHasGaps))
	assert.Zero(t, frame.Raw[4])
}

func TestDepacketizerDropsLatePackets(t *testing.T) {
	reader := &queuePacketReader{packets: []*packet.Packet{
		rtpDataPacket(0, []byte{255, 255, 255}),
		rtpDataPacket(1, []byte{128}), // behind the read position once packet 0 is consumed
	}}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec())

	frame := &audio.Frame{Duration: 3}
	require.NoError(t, dpkt.ReadFrame(frame))

	frame2 := &audio.Frame{Duration: 2}
	require.NoError(t, dpkt.ReadFrame(frame2))
	assert.True(t, frame2.HasFlags(audio.FlagHasDrops))
}

// TestDepacketizerConcealsGapAheadOfPosition covers a dropped middle
// packet: packets arrive at {0, 200, 400} with the middle one lost, so by
// the time ReadFrame needs samples for [200, 400) the only packet
// buffered (timestamp 400) is already ahead of the read position.
// That gap must be silence-filled with HasGaps set and HasSignal clear,
// not spliced straight into the timestamp-400 packet's audio.
func TestDepacketizerConcealsGapAheadOfPosition(t *testing.T) {
	reader := &queuePacketReader{packets: []*packet.Packet{
		rtpDataPacket(0, bytesOf(200, 255)),
		rtpDataPacket(400, bytesOf(200, 255)),
	}}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec())

	frame1 := &audio.Frame{Duration: 200}
	require.NoError(t, dpkt.ReadFrame(frame1))
	assert.True(t, frame1.HasFlags(audio.FlagHasSignal))
	assert.False(t, frame1.HasFlags(audio.FlagHasGaps))

	frame2 := &audio.Frame{Duration: 200}
	require.NoError(t, dpkt.ReadFrame(frame2))
	assert.False(t, frame2.HasFlags(audio.FlagHasSignal))
	assert.True(t, frame2.HasFlags(audio.FlagHasGaps))
	for _, s := range frame2.Raw {
		assert.Zero(t, s)
	}

	frame3 := &audio.Frame{Duration: 200}
	require.NoError(t, dpkt.ReadFrame(frame3))
	assert.True(t, frame3.HasFlags(audio.FlagHasSignal))
	assert.False(t, frame3.HasFlags(audio.FlagHasGaps))
	for _, s := range frame3.Raw {
		assert.InDelta(t, 1.0, s, 0.01)
	}
}

func bytesOf(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestDepacketizerLossBeepProducesNonZeroConcealment(t *testing.T) {
	reader := &queuePacketReader{}
	dpkt := NewDepacketizer(reader, &pcmDecoder{}, monoSpec()).WithLossBeep(true)

	frame := &audio.Frame{Duration: 20}
	require.NoError(t, dpkt.ReadFrame(frame))

	nonZero := false
	for _, s := range frame.Raw {
		if s != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero)
}
