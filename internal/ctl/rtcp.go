// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ctl

import (
	"time"

	"github.com/pion/rtcp"
)

// ntpEpochOffset is the number of seconds between the NTP epoch (1900)
// and the Unix epoch (1970), used to build RTCP NTP timestamps.
const ntpEpochOffset = 2208988800

// SenderStats is the minimal per-session state a sender needs to report
// on its control endpoint.
type SenderStats struct {
	SSRC             uint32
	PacketCount      uint32
	OctetCount       uint32
	LastRTPTimestamp uint32
	ReportTime       time.Time // wall-clock time the report is built; zero means time.Now()
}

// BuildSenderReport composes an RTCP SenderReport for periodic emission
// over the control endpoint.
func BuildSenderReport(stats SenderStats) ([]byte, error) {
	sr := &rtcp.SenderReport{
		SSRC:        stats.SSRC,
		NTPTime:     toNTP(stats.ReportTime),
		RTPTime:     stats.LastRTPTimestamp,
		PacketCount: stats.PacketCount,
		OctetCount:  stats.OctetCount,
	}
	return sr.Marshal()
}

// ReceiverStats is one source's reception-quality summary, reported back
// to the sender via an RTCP ReceiverReport.
type ReceiverStats struct {
	SourceSSRC   uint32
	FractionLost uint8
	TotalLost    uint32
	HighestSeq   uint32
	Jitter       uint32
}

// BuildReceiverReport composes an RTCP ReceiverReport carrying one
// reception report block. localSSRC identifies the reporting receiver.
func BuildReceiverReport(localSSRC uint32, stats ReceiverStats) ([]byte, error) {
	rr := &rtcp.ReceiverReport{
		SSRC: localSSRC,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               stats.SourceSSRC,
			FractionLost:       stats.FractionLost,
			TotalLost:          stats.TotalLost,
			LastSequenceNumber: stats.HighestSeq,
			Jitter:             stats.Jitter,
		}},
	}
	return rr.Marshal()
}

// ParseReports unmarshals a compound or single RTCP packet, typically
// read off a control endpoint's UDP port.
func ParseReports(b []byte) ([]rtcp.Packet, error) {
	return rtcp.Unmarshal(b)
}

func toNTP(t time.Time) uint64 {
	if t.IsZero() {
		t = time.Now()
	}
	sec := uint64(t.Unix() + ntpEpochOffset)
	frac := (uint64(t.Nanosecond()) << 32) / 1e9
	return sec<<32 | frac
}
