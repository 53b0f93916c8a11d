// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audio

import (
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/core"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// ReadMode tells a frame reader how hard it should try to fill the
// requested duration.
type ReadMode int

const (
	// ModeHard requires the reader to either fully fill the frame
	// (zero-filling gaps as needed) or return an error.
	ModeHard ReadMode = iota
	// ModeSoft allows the reader to return a partially filled frame
	// when doing so avoids blocking or an unnecessary allocation.
	ModeSoft
)

// Flags describes what's known about how a Frame was built. Combining
// frames (mixing, concatenating) should OR their flags together: if any
// input frame HasGaps, the combined frame does too.
type Flags uint32

const (
	// FlagHasSignal is set if the frame has at least some samples filled
	// from packets. If clear, the frame is all-zero because no packets
	// were available yet.
	FlagHasSignal Flags = 1 << iota
	// FlagHasGaps is set if the frame is only partially filled with
	// samples from packets; the rest is zero-filled.
	FlagHasGaps
	// FlagHasDrops is set if late packets were dropped while this frame
	// was assembled. Orthogonal to HasSignal/HasGaps.
	FlagHasDrops
)

// Frame is a window of raw or encoded audio samples moving through the
// pipeline. Raw frames carry float32 samples; encoded frames carry
// compressed bytes produced by an audio/codec encoder.
type Frame struct {
	Flags Flags

	// Raw holds interleaved float32 samples when IsRaw is true.
	Raw []float32
	// Bytes holds encoded payload bytes when IsRaw is false.
	Bytes []byte
	IsRaw bool

	// Duration is the frame's length in stream timestamp ticks.
	Duration packet.StreamTimestamp

	// CaptureTimestamp is the wall-clock time the first sample was
	// captured, or the zero Time if unknown.
	CaptureTimestamp time.Time
}

// HasFlags reports whether all bits of flags are set.
func (f *Frame) HasFlags(flags Flags) bool {
	return f.Flags&flags == flags
}

// HasCaptureTimestamp reports whether CaptureTimestamp was set.
func (f *Frame) HasCaptureTimestamp() bool {
	return !f.CaptureTimestamp.IsZero()
}

// NumRawSamples returns len(Raw); valid only when IsRaw.
func (f *Frame) NumRawSamples() int {
	return len(f.Raw)
}

// Reset clears the frame for reuse, keeping its backing arrays.
func (f *Frame) Reset() {
	raw := f.Raw[:0]
	b := f.Bytes[:0]
	*f = Frame{Raw: raw, Bytes: b}
}

// FramePool hands out pooled *Frame values.
type FramePool struct {
	pool *core.Pool[Frame]
}

// DefaultFrameRawCapacity sizes the initial float32 buffer for a typical
// 20ms stereo frame at 48kHz (48000 * 0.02 * 2 channels).
const DefaultFrameRawCapacity = 1920

// NewFramePool returns a FramePool whose Get() allocates buffers sized for
// DefaultFrameRawCapacity raw samples on first use.
func NewFramePool() *FramePool {
	return &FramePool{
		pool: core.NewPool(func() *Frame {
			return &Frame{Raw: make([]float32, 0, DefaultFrameRawCapacity)}
		}, 0),
	}
}

// Get returns a cleared frame ready for reuse.
func (p *FramePool) Get() *Frame {
	f := p.pool.Get()
	f.Reset()
	return f
}

// Put returns f to the pool. The caller must not touch f afterward.
func (p *FramePool) Put(f *Frame) {
	p.pool.Put(f)
}
