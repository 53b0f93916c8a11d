// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package codec adapts the wire payload codecs (Opus via
// gopkg.in/hraban/opus.v2, G.711 via github.com/zaf/g711) to the
// FrameDecoder/FrameEncoder interfaces the session layer depends on.
// Sessions call BeginFrame/ReadSamples/EndFrame for each stretch of a
// packet they read into a frame; when a packet spans two frames, the
// session begins it again and skips the samples it already read with
// DropSamples.
package codec

import "github.com/roc-streaming/roc-toolkit-sub007/internal/packet"

// FrameDecoder turns an encoded packet payload into interleaved float32
// samples for one channel layout and sample rate.
type FrameDecoder interface {
	// Position returns the stream timestamp of the next sample
	// ReadSamples will return.
	Position() packet.StreamTimestamp

	// Available returns how many samples per channel remain in the
	// frame started by the last BeginFrame call.
	Available() packet.StreamTimestamp

	// DecodedSampleCount returns how many samples per channel frameData
	// would decode to. It does not start a frame; an implementation may
	// decode frameData into scratch space to count the samples.
	DecodedSampleCount(frameData []byte) int

	// BeginFrame starts decoding frameData, whose first sample has
	// stream position framePosition.
	BeginFrame(framePosition packet.StreamTimestamp, frameData []byte) error

	// ReadSamples decodes up to len(samples) interleaved samples into
	// samples and returns how many were written.
	ReadSamples(samples []float32) int

	// DropSamples discards up to n samples per channel without decoding
	// them, returning how many were actually dropped.
	DropSamples(n int) int

	// EndFrame finishes the frame started by BeginFrame.
	EndFrame()
}

// FrameEncoder turns interleaved float32 samples into an encoded payload.
type FrameEncoder interface {
	// Encode encodes the given interleaved samples, appending the result
	// to buf and returning the extended slice.
	Encode(samples []float32, buf []byte) ([]byte, error)
}
