// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

import (
	"math"

	"gopkg.in/hraban/opus.v2"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// opusMaxPacketBytes bounds a single Opus packet per RFC 6716.
const opusMaxPacketBytes = 1275

// OpusEncoder adapts *opus.Encoder to FrameEncoder, converting the
// pipeline's float32 samples to the int16 PCM the opus.v2 binding expects.
type OpusEncoder struct {
	enc      *opus.Encoder
	channels int
	pcmBuf   []int16
	outBuf   [opusMaxPacketBytes]byte
}

// NewOpusEncoder creates an encoder for sampleRate and channels, tuned
// for voice (opus.AppVoIP).
func NewOpusEncoder(sampleRate int, channels int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &OpusEncoder{enc: enc, channels: channels}, nil
}

// Encode implements FrameEncoder.
func (e *OpusEncoder) Encode(samples []float32, buf []byte) ([]byte, error) {
	if cap(e.pcmBuf) < len(samples) {
		e.pcmBuf = make([]int16, len(samples))
	}
	pcm := e.pcmBuf[:len(samples)]
	for i, s := range samples {
		pcm[i] = floatToInt16(s)
	}

	n, err := e.enc.Encode(pcm, e.outBuf[:])
	if err != nil {
		return nil, err
	}
	return append(buf, e.outBuf[:n]...), nil
}

// OpusDecoder adapts *opus.Decoder to FrameDecoder.
type OpusDecoder struct {
	dec      *opus.Decoder
	channels int

	position  packet.StreamTimestamp
	available int
	pcmBuf    []int16
	decoded   []float32
	cursor    int
}

// NewOpusDecoder creates a decoder for sampleRate and channels.
func NewOpusDecoder(sampleRate int, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &OpusDecoder{dec: dec, channels: channels}, nil
}

// Position implements FrameDecoder.
func (d *OpusDecoder) Position() packet.StreamTimestamp { return d.position }

// Available implements FrameDecoder.
func (d *OpusDecoder) Available() packet.StreamTimestamp {
	return packet.StreamTimestamp((d.available - d.cursor) / max1(d.channels))
}

// opusMaxFrameSamples bounds a single decoded Opus frame (120ms at 48kHz
// per channel, the codec's largest legal frame duration).
const opusMaxFrameSamples = 5760

// DecodedSampleCount implements FrameDecoder. The opus.v2 binding has no
// side-effect-free frame size probe, so this decodes frameData into a
// scratch buffer and reports the sample count; BeginFrame below then
// performs the real decode into its own buffer. Decoding twice is wasted
// work but harmless, since both decodes see the same input bytes.
func (d *OpusDecoder) DecodedSampleCount(frameData []byte) int {
	if cap(d.pcmBuf) < opusMaxFrameSamples*d.channels {
		d.pcmBuf = make([]int16, opusMaxFrameSamples*d.channels)
	}
	n, err := d.dec.Decode(frameData, d.pcmBuf[:opusMaxFrameSamples*d.channels])
	if err != nil {
		return 0
	}
	return n
}

// BeginFrame implements FrameDecoder.
func (d *OpusDecoder) BeginFrame(framePosition packet.StreamTimestamp, frameData []byte) error {
	d.position = framePosition

	if cap(d.pcmBuf) < opusMaxFrameSamples*d.channels {
		d.pcmBuf = make([]int16, opusMaxFrameSamples*d.channels)
	}
	pcm := d.pcmBuf[:opusMaxFrameSamples*d.channels]

	n, err := d.dec.Decode(frameData, pcm)
	if err != nil {
		return err
	}
	total := n * d.channels

	if cap(d.decoded) < total {
		d.decoded = make([]float32, total)
	}
	d.decoded = d.decoded[:total]
	for i := 0; i < total; i++ {
		d.decoded[i] = int16ToFloat(pcm[i])
	}

	d.available = total
	d.cursor = 0
	return nil
}

// ReadSamples implements FrameDecoder.
func (d *OpusDecoder) ReadSamples(samples []float32) int {
	remaining := d.available - d.cursor
	n := len(samples)
	if n > remaining {
		n = remaining
	}
	copy(samples[:n], d.decoded[d.cursor:d.cursor+n])
	d.cursor += n
	d.position += packet.StreamTimestamp(n / max1(d.channels))
	return n
}

// DropSamples implements FrameDecoder.
func (d *OpusDecoder) DropSamples(n int) int {
	remaining := (d.available - d.cursor) / max1(d.channels)
	if n > remaining {
		n = remaining
	}
	d.cursor += n * d.channels
	d.position += packet.StreamTimestamp(n)
	return n
}

// EndFrame implements FrameDecoder.
func (d *OpusDecoder) EndFrame() {
	d.available = 0
	d.cursor = 0
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func floatToInt16(s float32) int16 {
	v := float64(s) * math.MaxInt16
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

func int16ToFloat(s int16) float32 {
	return float32(s) / math.MaxInt16
}
