// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

import (
	"github.com/zaf/g711"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// PCMUEncoder encodes mono float32 samples to G.711 mu-law bytes, one byte
// per sample, via github.com/zaf/g711.
type PCMUEncoder struct {
	pcmBuf []int16
}

// NewPCMUEncoder returns a PCMU (G.711 mu-law) encoder. G.711 is always
// 8kHz mono; callers must resample to that rate beforehand.
func NewPCMUEncoder() *PCMUEncoder {
	return &PCMUEncoder{}
}

// Encode implements FrameEncoder.
func (e *PCMUEncoder) Encode(samples []float32, buf []byte) ([]byte, error) {
	if cap(e.pcmBuf) < len(samples) {
		e.pcmBuf = make([]int16, len(samples))
	}
	pcm := e.pcmBuf[:len(samples)]
	for i, s := range samples {
		pcm[i] = floatToInt16(s)
	}

	lpcm := int16SliceToLittleEndianBytes(pcm)
	encoded := g711.EncodeUlaw(lpcm)
	return append(buf, encoded...), nil
}

// PCMUDecoder decodes G.711 mu-law bytes to mono float32 samples.
type PCMUDecoder struct {
	position  packet.StreamTimestamp
	decoded   []float32
	available int
	cursor    int
}

// NewPCMUDecoder returns a PCMU decoder.
func NewPCMUDecoder() *PCMUDecoder {
	return &PCMUDecoder{}
}

// Position implements FrameDecoder.
func (d *PCMUDecoder) Position() packet.StreamTimestamp { return d.position }

// Available implements FrameDecoder.
func (d *PCMUDecoder) Available() packet.StreamTimestamp {
	return packet.StreamTimestamp(d.available - d.cursor)
}

// DecodedSampleCount implements FrameDecoder: G.711 is one byte per sample.
func (d *PCMUDecoder) DecodedSampleCount(frameData []byte) int {
	return len(frameData)
}

// BeginFrame implements FrameDecoder.
func (d *PCMUDecoder) BeginFrame(framePosition packet.StreamTimestamp, frameData []byte) error {
	d.position = framePosition

	lpcm := g711.DecodeUlaw(frameData)
	n := len(lpcm) / 2

	if cap(d.decoded) < n {
		d.decoded = make([]float32, n)
	}
	d.decoded = d.decoded[:n]
	for i := 0; i < n; i++ {
		s := int16(lpcm[2*i]) | int16(lpcm[2*i+1])<<8
		d.decoded[i] = int16ToFloat(s)
	}

	d.available = n
	d.cursor = 0
	return nil
}

// ReadSamples implements FrameDecoder.
func (d *PCMUDecoder) ReadSamples(samples []float32) int {
	remaining := d.available - d.cursor
	n := len(samples)
	if n > remaining {
		n = remaining
	}
	copy(samples[:n], d.decoded[d.cursor:d.cursor+n])
	d.cursor += n
	d.position += packet.StreamTimestamp(n)
	return n
}

// DropSamples implements FrameDecoder.
func (d *PCMUDecoder) DropSamples(n int) int {
	remaining := d.available - d.cursor
	if n > remaining {
		n = remaining
	}
	d.cursor += n
	d.position += packet.StreamTimestamp(n)
	return n
}

// EndFrame implements FrameDecoder.
func (d *PCMUDecoder) EndFrame() {
	d.available = 0
	d.cursor = 0
}

func int16SliceToLittleEndianBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
