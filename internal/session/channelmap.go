// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

// ChannelMapper converts interleaved samples between an input and output
// channel count. Only mono<->stereo mappings are implemented, covering
// the common voice and music cases; anything else passes through
// unmodified.
type ChannelMapper struct {
	inChannels, outChannels int
}

// NewChannelMapper returns a ChannelMapper between inChannels and
// outChannels.
func NewChannelMapper(inChannels, outChannels int) *ChannelMapper {
	return &ChannelMapper{inChannels: inChannels, outChannels: outChannels}
}

// Map converts in (interleaved, inChannels per frame) into out, reusing
// out's backing array when it holds len(in)/inChannels*outChannels samples
// and allocating a new one otherwise, and returns the portion written.
func (m *ChannelMapper) Map(in []float32, out []float32) []float32 {
	if m.inChannels == m.outChannels {
		if cap(out) < len(in) {
			out = make([]float32, len(in))
		}
		out = out[:len(in)]
		copy(out, in)
		return out
	}

	frames := len(in) / m.inChannels
	need := frames * m.outChannels
	if cap(out) < need {
		out = make([]float32, need)
	}
	out = out[:need]

	switch {
	case m.inChannels == 1 && m.outChannels == 2:
		for i := 0; i < frames; i++ {
			out[2*i] = in[i]
			out[2*i+1] = in[i]
		}
	case m.inChannels == 2 && m.outChannels == 1:
		for i := 0; i < frames; i++ {
			out[i] = (in[2*i] + in[2*i+1]) / 2
		}
	default:
		n := copy(out, in)
		return out[:n]
	}
	return out
}
