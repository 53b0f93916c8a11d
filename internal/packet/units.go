// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package packet holds the wire-adjacent packet representation shared by
// the network and session layers: flags, stream timestamp conversions,
// and the pooled Packet type itself.
package packet

import (
	"math"
	"time"
)

// StreamTimestamp is a 32-bit, wrap-around RTP-style media clock timestamp.
type StreamTimestamp uint32

// StreamTimestampDiff is a signed difference between two StreamTimestamp
// values, computed with 32-bit modular arithmetic.
type StreamTimestampDiff int32

// NsToStreamTimestamp converts a duration to ticks of sampleRate,
// saturating at the StreamTimestamp range. Panics if ns is negative or
// sampleRate is zero.
func NsToStreamTimestamp(ns time.Duration, sampleRate uint32) StreamTimestamp {
	if ns < 0 {
		panic("packet: ns should not be negative")
	}
	if sampleRate == 0 {
		panic("packet: sample_rate should not be zero")
	}
	ts := math.Round(ns.Seconds() * float64(sampleRate))
	ts = math.Min(ts, float64(math.MaxUint32))
	ts = math.Max(ts, 0)
	return StreamTimestamp(uint32(ts))
}

// StreamTimestampToNs converts ts ticks of sampleRate back to a duration.
func StreamTimestampToNs(ts StreamTimestamp, sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		panic("packet: sample_rate should not be zero")
	}
	sec := float64(ts) / float64(sampleRate)
	return time.Duration(math.Round(sec * float64(time.Second)))
}

// NsToStreamTimestampDelta converts a (possibly negative) duration to a
// signed tick delta, saturating at the int32 range.
func NsToStreamTimestampDelta(ns time.Duration, sampleRate uint32) StreamTimestampDiff {
	if sampleRate == 0 {
		panic("packet: sample_rate should not be zero")
	}
	ts := math.Round(ns.Seconds() * float64(sampleRate))
	ts = math.Min(ts, float64(math.MaxInt32))
	ts = math.Max(ts, float64(math.MinInt32))
	return StreamTimestampDiff(int32(ts))
}

// StreamTimestampDeltaToNs converts a signed tick delta back to a duration.
func StreamTimestampDeltaToNs(ts StreamTimestampDiff, sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		panic("packet: sample_rate should not be zero")
	}
	sec := float64(ts) / float64(sampleRate)
	return time.Duration(math.Round(sec * float64(time.Second)))
}

// Diff returns a - b as a 32-bit modular difference, matching RTP
// timestamp wraparound arithmetic.
func (a StreamTimestamp) Diff(b StreamTimestamp) StreamTimestampDiff {
	return StreamTimestampDiff(int32(a - b))
}

// Add returns the stream timestamp obtained by adding d ticks to a,
// wrapping modulo 2^32.
func (a StreamTimestamp) Add(d StreamTimestampDiff) StreamTimestamp {
	return StreamTimestamp(int64(a) + int64(d))
}
