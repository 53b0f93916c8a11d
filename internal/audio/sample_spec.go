// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audio holds the pipeline's sample-domain types: frames, the
// sample rate/channel-layout spec used to convert between durations and
// sample counts, and the pooled frame allocator.
package audio

import (
	"math/bits"
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// ChannelMask is a bitmask of enabled channels, e.g. 0b11 for stereo.
type ChannelMask uint32

const (
	// ChannelMono is a single-channel mask.
	ChannelMono ChannelMask = 0b1
	// ChannelStereo is a two-channel (left, right) mask.
	ChannelStereo ChannelMask = 0b11
)

// SampleSpec describes the sample rate and channel layout of a raw audio
// stream, and converts between nanosecond durations, per-channel sample
// counts, and RTP timestamp deltas.
type SampleSpec struct {
	SampleRate  uint32
	ChannelMask ChannelMask
}

// NumChannels returns the number of set bits in ChannelMask.
func (s SampleSpec) NumChannels() int {
	return bits.OnesCount32(uint32(s.ChannelMask))
}

// NsToSamplesPerChan converts a duration to a number of samples per
// channel.
func (s SampleSpec) NsToSamplesPerChan(d time.Duration) uint64 {
	if s.SampleRate == 0 {
		panic("audio: sample_rate should not be zero")
	}
	return uint64(d.Seconds() * float64(s.SampleRate))
}

// SamplesPerChanToNs converts a per-channel sample count to a duration.
func (s SampleSpec) SamplesPerChanToNs(n uint64) time.Duration {
	if s.SampleRate == 0 {
		panic("audio: sample_rate should not be zero")
	}
	return time.Duration(float64(n) / float64(s.SampleRate) * float64(time.Second))
}

// NsToSamplesOverall converts a duration to a sample count across all
// channels (NsToSamplesPerChan * NumChannels).
func (s SampleSpec) NsToSamplesOverall(d time.Duration) uint64 {
	return s.NsToSamplesPerChan(d) * uint64(s.NumChannels())
}

// SamplesOverallToNs converts an all-channels sample count to a duration.
func (s SampleSpec) SamplesOverallToNs(n uint64) time.Duration {
	if s.NumChannels() == 0 {
		panic("audio: channel_mask should not be zero")
	}
	return s.SamplesPerChanToNs(n / uint64(s.NumChannels()))
}

// NsToStreamTimestampDelta converts a signed duration delta to an RTP
// timestamp delta, same ticks-per-second as NsToSamplesPerChan but
// supporting negative values.
func (s SampleSpec) NsToStreamTimestampDelta(d time.Duration) packet.StreamTimestampDiff {
	return packet.NsToStreamTimestampDelta(d, s.SampleRate)
}

// StreamTimestampDeltaToNs converts an RTP timestamp delta back to a
// duration.
func (s SampleSpec) StreamTimestampDeltaToNs(ts packet.StreamTimestampDiff) time.Duration {
	return packet.StreamTimestampDeltaToNs(ts, s.SampleRate)
}
