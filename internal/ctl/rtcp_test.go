// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package ctl

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseSenderReport(t *testing.T) {
	b, err := BuildSenderReport(SenderStats{
		SSRC:             0x1234,
		PacketCount:      10,
		OctetCount:       2000,
		LastRTPTimestamp: 4800,
		ReportTime:       time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	pkts, err := ParseReports(b)
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	sr, ok := pkts[0].(*rtcp.SenderReport)
	require.True(t, ok)
	require.Equal(t, uint32(0x1234), sr.SSRC)
	require.Equal(t, uint32(10), sr.PacketCount)
	require.Equal(t, uint32(2000), sr.OctetCount)
	require.Equal(t, uint32(4800), sr.RTPTime)
}

func TestBuildAndParseReceiverReport(t *testing.T) {
	b, err := BuildReceiverReport(0xaaaa, ReceiverStats{
		SourceSSRC:   0x1234,
		FractionLost: 5,
		TotalLost:    42,
		HighestSeq:   9000,
		Jitter:       12,
	})
	require.NoError(t, err)

	pkts, err := ParseReports(b)
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	rr, ok := pkts[0].(*rtcp.ReceiverReport)
	require.True(t, ok)
	require.Equal(t, uint32(0xaaaa), rr.SSRC)
	require.Len(t, rr.Reports, 1)
	require.Equal(t, uint32(0x1234), rr.Reports[0].SSRC)
	require.Equal(t, uint32(42), rr.Reports[0].TotalLost)
}
